package detection

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidGeometry is returned for boxes with x2 < x1 or y2 < y1.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidConfiguration is returned for thresholds, scale factors or
	// window sizes outside their allowed range.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Box is an axis-aligned rectangle in inclusive pixel coordinates.
//
// Unlike image.Rectangle, both corners belong to the box:
//   - (X1, Y1) is the top-left pixel
//   - (X2, Y2) is the bottom-right pixel
//   - Width = X2 - X1 + 1, Height = Y2 - Y1 + 1
//
// A single-pixel box therefore has X1 == X2 and Y1 == Y2 and an area of 1.
type Box struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge (inclusive)
	Y2 int `json:"y2"` // Bottom edge (inclusive)
}

// BoxFromRect converts an exclusive image.Rectangle into an inclusive Box.
// The rectangle must be non-empty.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X - 1, Y2: r.Max.Y - 1}
}

// BoxFromXYWH converts an (x, y, w, h) region proposal into a Box.
//
// Proposers report regions as origin plus size; detection scripts historically
// turned those into (x, y, x+w, y+h), so the resulting box spans w+1 pixels.
// That convention is kept so scores line up with previously recorded results.
func BoxFromXYWH(x, y, w, h int) Box {
	return Box{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// ProposalRect returns the pixels of a box built by BoxFromXYWH, that is
// image.Rect(X1, Y1, X2, Y2). Use it instead of Rect when cropping proposals.
func (b Box) ProposalRect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Validate reports ErrInvalidGeometry if the corners are out of order.
func (b Box) Validate() error {
	if b.X2 < b.X1 || b.Y2 < b.Y1 {
		return errors.Wrapf(ErrInvalidGeometry, "box (%d,%d)-(%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
	}
	return nil
}

// Width returns the number of pixel columns covered by the box.
func (b Box) Width() int { return b.X2 - b.X1 + 1 }

// Height returns the number of pixel rows covered by the box.
func (b Box) Height() int { return b.Y2 - b.Y1 + 1 }

// Area returns Width * Height.
func (b Box) Area() int { return b.Width() * b.Height() }

// Rect returns the equivalent exclusive image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2+1, b.Y2+1)
}

// Scale multiplies every coordinate by f, truncating toward zero.
// Used to map boxes found on a downscaled pyramid level back onto the original image.
func (b Box) Scale(f float64) Box {
	return Box{
		X1: int(float64(b.X1) * f),
		Y1: int(float64(b.Y1) * f),
		X2: int(float64(b.X2) * f),
		Y2: int(float64(b.Y2) * f),
	}
}

// Union returns the smallest box containing both a and b.
func (b Box) Union(o Box) Box {
	return Box{
		X1: minInt(b.X1, o.X1),
		Y1: minInt(b.Y1, o.Y1),
		X2: maxInt(b.X2, o.X2),
		Y2: maxInt(b.Y2, o.Y2),
	}
}

// ScoredBox is a Box with a classifier confidence and an optional class label.
type ScoredBox struct {
	Box   Box     `json:"box"`
	Score float64 `json:"score"`           // Confidence in [0, 1]
	Label string  `json:"label,omitempty"` // Class label, empty for single-class results
}

// IoU computes the Intersection over Union of two boxes.
//
// Coordinates are inclusive, so every extent carries a +1:
//
//	inter = max(0, ix2-ix1+1) * max(0, iy2-iy1+1)
//	IoU   = inter / (area(a) + area(b) - inter)
//
// Disjoint boxes clamp the intersection to zero and score 0. The result is
// symmetric and a box scores exactly 1 against itself.
//
// # Errors
//
// Returns ErrInvalidGeometry if either box has x2 < x1 or y2 < y1.
func IoU(a, b Box) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return iou(a, b), nil
}

// iou assumes both boxes are valid, so the union is always at least 1.
func iou(a, b Box) float64 {
	ix1 := maxInt(a.X1, b.X1)
	iy1 := maxInt(a.Y1, b.Y1)
	ix2 := minInt(a.X2, b.X2)
	iy2 := minInt(a.Y2, b.Y2)

	inter := maxInt(0, ix2-ix1+1) * maxInt(0, iy2-iy1+1)
	union := a.Area() + b.Area() - inter

	return float64(inter) / float64(union)
}

// validUnit reports whether v lies in the closed interval [0, 1].
func validUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
