package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultBoxColor is the stroke used when an AnnotatedBox has no color.
var DefaultBoxColor = color.RGBA{0, 255, 0, 255}

// AnnotatedBox is a rectangle to draw plus an optional caption.
//
// Rect uses image.Rectangle semantics (Max exclusive) and coordinates relative
// to the image origin.
type AnnotatedBox struct {
	Rect    image.Rectangle
	Caption string
	Color   color.Color // nil uses DefaultBoxColor
}

// EncodedImage is a PNG encoded as base64, the form tools return images in.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Annotate returns a copy of img with each box outlined and captioned.
//
// Boxes are stroked 2 pixels wide, inside the rectangle. Captions are drawn with
// a 7x13 bitmap font, 10 pixels above the box's top edge, or 10 pixels below it
// when the box is within 20 pixels of the top of the image.
//
// The source image is never modified.
func Annotate(img image.Image, boxes []AnnotatedBox) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)

	for _, b := range boxes {
		c := b.Color
		if c == nil {
			c = DefaultBoxColor
		}
		strokeRect(out, b.Rect, 2, c)

		if b.Caption == "" {
			continue
		}
		y := b.Rect.Min.Y - 10
		if y <= 10 {
			y = b.Rect.Min.Y + 10
		}
		drawCaption(out, b.Rect.Min.X, y, b.Caption, c)
	}

	return out
}

// EncodePNGBase64 encodes img as PNG and wraps it for a tool result.
func EncodePNGBase64(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	b := img.Bounds()
	return &EncodedImage{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// ParseHexColor parses "#RRGGBB" into an opaque color.
func ParseHexColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, errors.Wrapf(err, "invalid color %q", hex)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// strokeRect outlines r with the given thickness, clipped to the image.
func strokeRect(img *image.RGBA, r image.Rectangle, thickness int, c color.Color) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), // top
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), // left
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r).Intersect(img.Bounds()), u, image.Point{}, draw.Src)
	}
}

// drawCaption draws text with its baseline at y.
func drawCaption(img *image.RGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
