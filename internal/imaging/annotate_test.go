package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestAnnotate_DrawsBoxOutline(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{0, 0, 0, 255})

	out := Annotate(img, []AnnotatedBox{{Rect: image.Rect(20, 30, 60, 70)}})

	tests := []struct {
		name    string
		x, y    int
		wantHex string
	}{
		{"top edge", 40, 30, "#00FF00"},
		{"top edge second row", 40, 31, "#00FF00"},
		{"bottom edge", 40, 69, "#00FF00"},
		{"left edge", 20, 50, "#00FF00"},
		{"right edge", 59, 50, "#00FF00"},
		{"interior", 40, 50, "#000000"},
		{"outside", 10, 10, "#000000"},
		{"just past right edge", 60, 50, "#000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hexAt(out, tt.x, tt.y); got != tt.wantHex {
				t.Errorf("pixel (%d,%d): got %s, want %s", tt.x, tt.y, got, tt.wantHex)
			}
		})
	}
}

func TestAnnotate_DoesNotModifySource(t *testing.T) {
	img := createInMemoryImage(50, 50, color.RGBA{0, 0, 0, 255})

	Annotate(img, []AnnotatedBox{{Rect: image.Rect(0, 0, 50, 50), Caption: "box"}})

	if got := hexAt(img, 0, 0); got != "#000000" {
		t.Errorf("source image modified: got %s at (0,0)", got)
	}
}

func TestAnnotate_CustomColorAndCaption(t *testing.T) {
	img := createInMemoryImage(120, 120, color.RGBA{0, 0, 0, 255})
	red := color.RGBA{255, 0, 0, 255}

	out := Annotate(img, []AnnotatedBox{{
		Rect:    image.Rect(10, 60, 100, 110),
		Caption: "raccoon: 99.00%",
		Color:   red,
	}})

	if got := hexAt(out, 50, 60); got != "#FF0000" {
		t.Errorf("box edge: got %s, want #FF0000", got)
	}

	// Caption sits above the box: baseline at y=50, glyphs span roughly y 40..52.
	found := false
	for y := 38; y < 53 && !found; y++ {
		for x := 10; x < 100; x++ {
			if hexAt(out, x, y) == "#FF0000" {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("expected caption pixels above the box")
	}
}

func TestAnnotate_CaptionBelowTopWhenNearEdge(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{0, 0, 0, 255})

	out := Annotate(img, []AnnotatedBox{{
		Rect:    image.Rect(5, 5, 95, 95),
		Caption: "WWWW",
	}})

	// Baseline moves to y=15, so glyph cells start at y=4 at the earliest.
	for y := 0; y < 4; y++ {
		for x := 0; x < 100; x++ {
			if hexAt(out, x, y) != "#000000" {
				t.Fatalf("unexpected caption pixel at (%d,%d)", x, y)
			}
		}
	}
}

func TestEncodePNGBase64(t *testing.T) {
	img := createPatternImage(30, 20)

	enc, err := EncodePNGBase64(img)
	if err != nil {
		t.Fatalf("EncodePNGBase64 failed: %v", err)
	}
	if enc.Width != 30 || enc.Height != 20 || enc.MimeType != "image/png" {
		t.Errorf("metadata: got %+v", enc)
	}

	raw, err := base64.StdEncoding.DecodeString(enc.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	if got := hexAt(decoded, 0, 0); got != "#FF0000" {
		t.Errorf("decoded pixel: got %s, want #FF0000", got)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#FF0000", color.RGBA{255, 0, 0, 255}, false},
		{"#00ff7f", color.RGBA{0, 255, 127, 255}, false},
		{"", color.RGBA{}, true},
		{"red", color.RGBA{}, true},
		{"#GG0000", color.RGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
