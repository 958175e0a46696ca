package proposal

import (
	"context"
	"image"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
	"github.com/ironsheep/proposal-tools-mcp/internal/ocr"
)

// TextWords proposes the boxes of words recognized by Tesseract.
type TextWords struct {
	Recognizer *ocr.Recognizer

	// MinSize drops proposals narrower or shorter than this.
	MinSize image.Point
}

// Propose returns word boxes in Tesseract's reading order, in the
// (x, y, x+w, y+h) proposer convention.
func (t *TextWords) Propose(ctx context.Context, img image.Image) ([]detection.Box, error) {
	rec := t.Recognizer
	if rec == nil {
		rec = ocr.NewRecognizer("")
	}
	regions, err := rec.Regions(ctx, img)
	if err != nil {
		return nil, err
	}

	boxes := make([]detection.Box, 0, len(regions))
	for _, r := range regions {
		rect := r.Box.Rect()
		if tooSmall(rect, t.MinSize) {
			continue
		}
		boxes = append(boxes, proposerBox(rect))
	}
	return dedupe(boxes), nil
}
