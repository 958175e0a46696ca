package proposal

import (
	"context"
	"image"
	"strings"

	"github.com/pkg/errors"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
	"github.com/ironsheep/proposal-tools-mcp/internal/imaging"
)

// Defaults for EdgeContours.
const (
	DefaultLowThreshold  = 50
	DefaultHighThreshold = 150
	DefaultMinPixels     = 10
)

// EdgeDetector selects the edge map EdgeContours traces.
type EdgeDetector int

const (
	// DetectGradient thresholds the luminance step to the right and below.
	// Filled shapes give closed outlines.
	DetectGradient EdgeDetector = iota

	// DetectCanny uses Canny edges. Non-max suppression leaves small gaps at
	// corners, so contours are traced with cannyGap tolerance.
	DetectCanny
)

// cannyGap is how far apart two Canny edge pixels may be and still belong to
// one contour.
const cannyGap = 3

func (d EdgeDetector) String() string {
	if d == DetectCanny {
		return "canny"
	}
	return "gradient"
}

// ParseEdgeDetector accepts "gradient" (or "") and "canny".
func ParseEdgeDetector(s string) (EdgeDetector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gradient":
		return DetectGradient, nil
	case "canny":
		return DetectCanny, nil
	}
	return DetectGradient, errors.Wrapf(detection.ErrInvalidConfiguration, "unknown edge detector %q", s)
}

// EdgeContours proposes the bounding box of every connected run of edge
// pixels. It is a cheap, segmentation-free alternative to selective search
// that works well on high-contrast objects.
type EdgeContours struct {
	Detector EdgeDetector

	// Threshold is the gradient step (0-255) for DetectGradient. Zero selects
	// imaging.DefaultGradientThreshold.
	Threshold int

	// Low and High are the Canny hysteresis thresholds (0-255). Zero values
	// select DefaultLowThreshold and DefaultHighThreshold.
	Low, High int

	// MinPixels discards contours with fewer edge pixels. Zero selects
	// DefaultMinPixels.
	MinPixels int

	// MinSize drops proposals narrower or shorter than this.
	MinSize image.Point
}

// Propose returns contour bounding boxes in scan order of their first pixel,
// in the (x, y, x+w, y+h) proposer convention.
func (e *EdgeContours) Propose(ctx context.Context, img image.Image) ([]detection.Box, error) {
	if img == nil {
		return nil, errors.Wrap(detection.ErrInvalidGeometry, "nil image")
	}
	low, high := e.Low, e.High
	if low == 0 {
		low = DefaultLowThreshold
	}
	if high == 0 {
		high = DefaultHighThreshold
	}
	if low < 0 || high > 255 || low > high {
		return nil, errors.Wrapf(detection.ErrInvalidConfiguration, "canny thresholds %d/%d", low, high)
	}
	threshold := e.Threshold
	if threshold == 0 {
		threshold = imaging.DefaultGradientThreshold
	}
	if threshold < 0 || threshold > 255 {
		return nil, errors.Wrapf(detection.ErrInvalidConfiguration, "gradient threshold %d", threshold)
	}
	minPixels := e.MinPixels
	if minPixels == 0 {
		minPixels = DefaultMinPixels
	}

	var edges *imaging.EdgeMap
	gap := 1
	switch e.Detector {
	case DetectCanny:
		edges = imaging.CannyEdges(img, low, high)
		gap = cannyGap
	default:
		edges = imaging.GradientEdges(img, threshold)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var boxes []detection.Box
	for _, r := range findContours(edges, minPixels, gap) {
		if tooSmall(r, e.MinSize) {
			continue
		}
		boxes = append(boxes, proposerBox(r))
	}
	return dedupe(boxes), nil
}

// findContours groups edge pixels lying within gap of each other (gap 1 is
// plain 8-connectivity) and returns the bounds of each group of at least
// minPixels.
func findContours(edges *imaging.EdgeMap, minPixels, gap int) []image.Rectangle {
	w, h := edges.Width, edges.Height
	visited := make([]bool, w*h)
	var rects []image.Rectangle

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || !edges.At(x, y) {
				continue
			}
			r, n := floodFill(edges, visited, x, y, gap)
			if n >= minPixels {
				rects = append(rects, r)
			}
		}
	}
	return rects
}

// floodFill marks the contour containing (x0, y0) and returns its bounds and
// pixel count. It uses an explicit stack so long contours cannot overflow.
func floodFill(edges *imaging.EdgeMap, visited []bool, x0, y0, gap int) (image.Rectangle, int) {
	w := edges.Width
	r := image.Rect(x0, y0, x0+1, y0+1)
	count := 0
	stack := []image.Point{{X: x0, Y: y0}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !edges.At(p.X, p.Y) || visited[p.Y*w+p.X] {
			continue
		}
		visited[p.Y*w+p.X] = true
		count++
		r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		for dy := -gap; dy <= gap; dy++ {
			for dx := -gap; dx <= gap; dx++ {
				if dx != 0 || dy != 0 {
					stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
				}
			}
		}
	}
	return r, count
}
