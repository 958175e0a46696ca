package proposal

import (
	"context"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/blur"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// Mode selects the selective search strategy.
type Mode int

const (
	// Fast runs a single segmentation scale.
	Fast Mode = iota
	// Quality runs several segmentation scales and adds texture similarity.
	Quality
)

func (m Mode) String() string {
	if m == Quality {
		return "quality"
	}
	return "fast"
}

// ParseMode maps "fast" or "quality" to a Mode. Empty means fast.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fast":
		return Fast, nil
	case "quality":
		return Quality, nil
	}
	return Fast, errors.Wrapf(detection.ErrInvalidConfiguration, "unknown selective search mode %q", s)
}

// scales returns the segmentation constants k for the mode.
func (m Mode) scales() []float64 {
	if m == Quality {
		return []float64{50, 100, 150, 300}
	}
	return []float64{100}
}

// DefaultSigma is the pre-blur radius used when SelectiveSearch.Sigma is 0.
const DefaultSigma = 0.8

// Region is one node of the selective search hierarchy.
type Region struct {
	Rect  image.Rectangle // Exclusive bounds, relative to the image origin
	Size  int             // Pixel count
	Level int             // 1 for initial segments, parent = max(children) + 1
}

// SelectiveSearch proposes regions by over-segmenting the image and then
// greedily merging similar neighbours. Every region created along the way,
// from the initial segments to the whole image, is a proposal.
type SelectiveSearch struct {
	Mode Mode

	// Sigma is the Gaussian pre-blur radius. 0 means DefaultSigma.
	Sigma float64

	// MinSize drops proposals narrower or shorter than this.
	MinSize image.Point

	// Logger receives timing and count details. Nil means the standard logger.
	Logger logrus.FieldLogger
}

// Propose returns the deduplicated proposals, smallest hierarchy levels
// first.
//
// Boxes follow the (x, y, x+w, y+h) proposer convention of BoxFromXYWH, so
// their right and bottom edges may sit one pixel past the image.
func (s *SelectiveSearch) Propose(ctx context.Context, img image.Image) ([]detection.Box, error) {
	regions, err := s.Regions(ctx, img)
	if err != nil {
		return nil, err
	}

	boxes := make([]detection.Box, 0, len(regions))
	for _, r := range regions {
		if tooSmall(r.Rect, s.MinSize) {
			continue
		}
		boxes = append(boxes, proposerBox(r.Rect))
	}
	return dedupe(boxes), nil
}

// Regions returns every region of every hierarchy, stable-sorted by level.
func (s *SelectiveSearch) Regions(ctx context.Context, img image.Image) ([]Region, error) {
	if img == nil {
		return nil, errors.Wrap(detection.ErrInvalidGeometry, "nil image")
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, errors.Wrapf(detection.ErrInvalidGeometry, "empty image %dx%d", b.Dx(), b.Dy())
	}

	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sigma := s.Sigma
	if sigma == 0 {
		sigma = DefaultSigma
	}
	if sigma < 0 {
		return nil, errors.Wrapf(detection.ErrInvalidConfiguration, "sigma %v must not be negative", sigma)
	}

	start := time.Now()
	li := newLabImage(blur.Gaussian(img, sigma))
	sim := similarity{
		texture: s.Mode == Quality,
		imSize:  float64(li.width * li.height),
	}

	var out []Region
	for _, k := range s.Mode.scales() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		labels, n := segmentGraph(li, k, int(k))
		initial := initialRegions(li, labels, n)
		all, err := groupRegions(ctx, initial, neighbours(labels, li.width, li.height), sim)
		if err != nil {
			return nil, err
		}

		logger.WithFields(logrus.Fields{
			"k":        k,
			"segments": n,
			"regions":  len(all),
		}).Debug("selective search hierarchy built")

		for _, r := range all {
			out = append(out, Region{Rect: r.rect, Size: r.size, Level: r.level})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })

	logger.WithFields(logrus.Fields{
		"mode":    s.Mode.String(),
		"regions": len(out),
		"elapsed": time.Since(start),
	}).Debug("selective search complete")

	return out, nil
}
