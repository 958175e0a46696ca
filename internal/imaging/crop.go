package imaging

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// CropBox extracts the pixels covered by an inclusive detection box.
//
// The box is interpreted relative to the image origin and clipped to the
// image bounds. The returned image is a copy with bounds starting at (0, 0).
//
// # Errors
//
//   - detection.ErrInvalidGeometry if the box is malformed
//   - detection.ErrInvalidGeometry if the box lies entirely outside the image
func CropBox(img image.Image, box detection.Box) (*image.NRGBA, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	return cropRect(img, box, box.Rect())
}

// CropProposal extracts the region of a proposer box, (x, y, x+w, y+h) as
// built by detection.BoxFromXYWH. The crop is image.Rect(X1, Y1, X2, Y2), w by h
// pixels, so a box one pixel past the right or bottom edge still crops
// exactly to the edge.
//
// Errors are as for CropBox. A zero-width or zero-height box is
// detection.ErrInvalidGeometry.
func CropProposal(img image.Image, box detection.Box) (*image.NRGBA, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	return cropRect(img, box, box.ProposalRect())
}

func cropRect(img image.Image, box detection.Box, rect image.Rectangle) (*image.NRGBA, error) {
	bounds := img.Bounds()
	r := rect.Add(bounds.Min).Intersect(bounds)
	if r.Empty() {
		return nil, errors.Wrapf(detection.ErrInvalidGeometry,
			"box (%d,%d)-(%d,%d) outside image %dx%d",
			box.X1, box.Y1, box.X2, box.Y2, bounds.Dx(), bounds.Dy())
	}
	return imaging.Crop(img, r), nil
}

// ResizeToWidth scales img to the given width, keeping its aspect ratio.
//
// It returns the resized image and the factor original width / new width.
// Images already at the requested width are returned unchanged with factor 1.
func ResizeToWidth(img image.Image, width int) (image.Image, float64, error) {
	if width <= 0 {
		return nil, 0, errors.Wrapf(detection.ErrInvalidConfiguration, "resize width %d must be positive", width)
	}
	w := img.Bounds().Dx()
	if w == width {
		return img, 1, nil
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos), float64(w) / float64(width), nil
}
