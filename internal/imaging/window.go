package imaging

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// Window is one position of a sliding window.
type Window struct {
	// X, Y are the top-left corner of the window, relative to the image origin.
	X int
	Y int

	// Patch is the image region [Y, Y+height) x [X, X+width).
	Patch image.Image
}

// Box returns the window's region as an inclusive detection box.
func (w Window) Box() detection.Box {
	b := w.Patch.Bounds()
	return detection.Box{X1: w.X, Y1: w.Y, X2: w.X + b.Dx() - 1, Y2: w.Y + b.Dy() - 1}
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// SlidingWindow lazily enumerates fixed-size windows over an image.
//
// Windows are visited row-major: y from 0 while y < height-windowHeight, and for
// each y, x from 0 while x < width-windowWidth, both advancing by step.
//
// # Edge Positions
//
// The end bounds are exclusive, so a window sitting flush against the right
// or bottom edge is never produced, and an image no larger than the window
// in either dimension produces no windows at all. Detection results recorded
// with earlier tooling depend on this enumeration; keep it when comparing
// window counts or positions.
//
// Patches share pixels with the source image when it implements SubImage
// (all image package types do); otherwise each patch is a copy.
type SlidingWindow struct {
	img   image.Image
	step  int
	size  image.Point
	limit image.Point
	x, y  int
	cur   Window
	done  bool
}

// NewSlidingWindow creates a sliding window over img.
//
// Parameters:
//   - img: Source image.
//   - step: Distance in pixels between consecutive windows, on both axes. Must be >= 1.
//   - size: Window (width, height). Both must be > 0.
//
// # Errors
//
// Returns detection.ErrInvalidConfiguration for step < 1 or a non-positive window size.
func NewSlidingWindow(img image.Image, step int, size image.Point) (*SlidingWindow, error) {
	if step < 1 {
		return nil, errors.Wrapf(detection.ErrInvalidConfiguration, "window step %d must be >= 1", step)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Wrapf(detection.ErrInvalidConfiguration,
			"window size %dx%d must be positive", size.X, size.Y)
	}

	b := img.Bounds()
	sw := &SlidingWindow{
		img:   img,
		step:  step,
		size:  size,
		limit: image.Pt(b.Dx()-size.X, b.Dy()-size.Y),
		x:     -step,
	}
	if sw.limit.X <= 0 || sw.limit.Y <= 0 {
		sw.done = true
	}
	return sw, nil
}

// Next advances to the next window and reports whether one is available.
func (s *SlidingWindow) Next() bool {
	if s.done {
		return false
	}

	s.x += s.step
	if s.x >= s.limit.X {
		s.x = 0
		s.y += s.step
	}
	if s.y >= s.limit.Y {
		s.done = true
		s.cur = Window{}
		return false
	}

	s.cur = Window{X: s.x, Y: s.y, Patch: s.patch(s.x, s.y)}
	return true
}

// Window returns the current window. Only valid after Next returned true.
func (s *SlidingWindow) Window() Window {
	return s.cur
}

// Count returns the total number of windows the iterator produces, computed
// without iterating.
func (s *SlidingWindow) Count() int {
	if s.limit.X <= 0 || s.limit.Y <= 0 {
		return 0
	}
	return ceilDiv(s.limit.X, s.step) * ceilDiv(s.limit.Y, s.step)
}

func (s *SlidingWindow) patch(x, y int) image.Image {
	min := s.img.Bounds().Min
	r := image.Rect(min.X+x, min.Y+y, min.X+x+s.size.X, min.Y+y+s.size.Y)
	if si, ok := s.img.(subImager); ok {
		return si.SubImage(r)
	}
	return imaging.Crop(s.img, r)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
