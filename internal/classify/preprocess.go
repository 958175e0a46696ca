package classify

import (
	"image"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// Layout is the memory order of the model's input tensor.
type Layout int

const (
	// LayoutNHWC interleaves channels per pixel (1xHxWx3). Keras models use it.
	LayoutNHWC Layout = iota

	// LayoutNCHW stores one plane per channel (1x3xHxW).
	LayoutNCHW
)

func (l Layout) String() string {
	if l == LayoutNCHW {
		return "nchw"
	}
	return "nhwc"
}

// ParseLayout accepts "nhwc" (or "") and "nchw".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nhwc":
		return LayoutNHWC, nil
	case "nchw":
		return LayoutNCHW, nil
	}
	return LayoutNHWC, errors.Wrapf(detection.ErrInvalidConfiguration, "unknown tensor layout %q", s)
}

// Shape returns the tensor dimensions for one image of size.
func (l Layout) Shape(size image.Point) []int64 {
	if l == LayoutNCHW {
		return []int64{1, 3, int64(size.Y), int64(size.X)}
	}
	return []int64{1, int64(size.Y), int64(size.X), 3}
}

// Preprocess resizes img to size with bicubic interpolation and returns it as
// a float32 tensor in RGB order and the given layout, scaled to [-1, 1] as
// MobileNetV2 expects (x/127.5 - 1).
func Preprocess(img image.Image, size image.Point, layout Layout) []float32 {
	resized := resize.Resize(uint(size.X), uint(size.Y), img, resize.Bicubic)
	b := resized.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h

	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rgb := [3]float32{
				float32(r>>8)/127.5 - 1,
				float32(g>>8)/127.5 - 1,
				float32(bl>>8)/127.5 - 1,
			}
			i := y*w + x
			for c, v := range rgb {
				if layout == LayoutNCHW {
					out[c*plane+i] = v
				} else {
					out[3*i+c] = v
				}
			}
		}
	}
	return out
}
