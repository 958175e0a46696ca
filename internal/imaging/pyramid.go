package imaging

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// PyramidLevel is one image in an image pyramid.
type PyramidLevel struct {
	// Image is the (possibly downscaled) image for this level.
	Image image.Image

	// Index is 0 for the original image and increments per level.
	Index int

	// Scale is original width / level width. Multiplying a box found on this
	// level by Scale maps it back onto the original image.
	Scale float64
}

// Pyramid lazily produces progressively downscaled copies of an image.
//
// The first level is always the original image, unchanged, even when it is
// already smaller than the minimum size. Each later level has width
// int(previousWidth / scale) with the height resized to keep the aspect ratio.
// The pyramid stops as soon as a resized level is narrower or shorter than the
// minimum size; that level is never yielded.
//
// Only one level is computed per call to Next. A Pyramid cannot be restarted;
// build a new one to iterate again.
//
// # Example
//
//	pyr, err := imaging.NewPyramid(img, 1.5, image.Pt(224, 224))
//	if err != nil {
//	    return err
//	}
//	for pyr.Next() {
//	    level := pyr.Level()
//	    // slide windows over level.Image ...
//	}
type Pyramid struct {
	scale    float64
	minSize  image.Point
	origW    int
	current  image.Image
	next     image.Image
	index    int
	started  bool
	finished bool
}

// NewPyramid creates a pyramid over img.
//
// Parameters:
//   - img: The source image. It is never modified.
//   - scale: Downscale factor between consecutive levels. Must be > 1.
//   - minSize: Minimum (width, height) for levels after the first. Both must be > 0.
//
// # Errors
//
// Returns detection.ErrInvalidConfiguration for scale <= 1 or a non-positive minimum size.
func NewPyramid(img image.Image, scale float64, minSize image.Point) (*Pyramid, error) {
	if !(scale > 1) {
		return nil, errors.Wrapf(detection.ErrInvalidConfiguration, "pyramid scale %v must be > 1", scale)
	}
	if minSize.X <= 0 || minSize.Y <= 0 {
		return nil, errors.Wrapf(detection.ErrInvalidConfiguration,
			"pyramid min size %dx%d must be positive", minSize.X, minSize.Y)
	}
	return &Pyramid{
		scale:   scale,
		minSize: minSize,
		origW:   img.Bounds().Dx(),
		next:    img,
	}, nil
}

// Next advances to the next level and reports whether one is available.
func (p *Pyramid) Next() bool {
	if p.finished {
		return false
	}

	if !p.started {
		p.started = true
		p.current = p.next
		p.next = nil
		return true
	}

	w := int(float64(p.current.Bounds().Dx()) / p.scale)
	if w < 1 {
		p.finish()
		return false
	}

	resized := imaging.Resize(p.current, w, 0, imaging.Lanczos)
	b := resized.Bounds()
	if b.Dy() < p.minSize.Y || b.Dx() < p.minSize.X {
		p.finish()
		return false
	}

	p.current = resized
	p.index++
	return true
}

// Level returns the current level after Next returned true. Before the first
// Next and once the pyramid is exhausted it returns the zero PyramidLevel.
func (p *Pyramid) Level() PyramidLevel {
	if p.current == nil {
		return PyramidLevel{}
	}
	scale := 1.0
	if w := p.current.Bounds().Dx(); w > 0 && p.index > 0 {
		scale = float64(p.origW) / float64(w)
	}
	return PyramidLevel{
		Image: p.current,
		Index: p.index,
		Scale: scale,
	}
}

func (p *Pyramid) finish() {
	p.finished = true
	p.current = nil
}
