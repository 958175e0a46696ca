package proposal

import (
	"context"
	"image"
	"strings"

	"github.com/pkg/errors"

	"github.com/ironsheep/proposal-tools-mcp/internal/config"
	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
	"github.com/ironsheep/proposal-tools-mcp/internal/ocr"
)

// Source generates candidate object regions for an image.
//
// Boxes are relative to img.Bounds().Min and follow the (x, y, x+w, y+h)
// proposer convention of detection.BoxFromXYWH: X2 and Y2 are one past the
// region, so the region's pixels are image.Rect(X1, Y1, X2, Y2).
// Implementations must not modify img and should return promptly with
// ctx.Err() once ctx is cancelled.
type Source interface {
	Propose(ctx context.Context, img image.Image) ([]detection.Box, error)
}

// SourceFunc adapts an ordinary function to the Source interface.
type SourceFunc func(ctx context.Context, img image.Image) ([]detection.Box, error)

// Propose calls f(ctx, img).
func (f SourceFunc) Propose(ctx context.Context, img image.Image) ([]detection.Box, error) {
	return f(ctx, img)
}

// Source names accepted by SourceByName.
const (
	NameSelectiveSearch = "selective_search"
	NameEdgeContours    = "edge_contours"
	NameTextWords       = "text_words"
)

// SourceByName builds a configured Source.
//
// Recognized names are "selective_search" (mode from cfg.Method),
// "edge_contours" and "text_words". Short forms "selective", "edges" and
// "text" are accepted too. An empty name selects selective search.
func SourceByName(name string, cfg config.Proposals) (Source, error) {
	minSize := cfg.MinSize.Point()

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameSelectiveSearch, "selective":
		mode, err := ParseMode(cfg.Method)
		if err != nil {
			return nil, err
		}
		return &SelectiveSearch{Mode: mode, MinSize: minSize}, nil

	case NameEdgeContours, "edges":
		return &EdgeContours{MinSize: minSize}, nil

	case NameTextWords, "text":
		return &TextWords{Recognizer: ocr.NewRecognizer(cfg.OCRLanguage), MinSize: minSize}, nil
	}

	return nil, errors.Wrapf(detection.ErrInvalidConfiguration, "unknown proposal source %q", name)
}

// tooSmall reports whether a region is narrower or shorter than min.
func tooSmall(r image.Rectangle, min image.Point) bool {
	return r.Dx() < min.X || r.Dy() < min.Y
}

// proposerBox converts a region to the (x, y, x+w, y+h) convention.
func proposerBox(r image.Rectangle) detection.Box {
	return detection.BoxFromXYWH(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// dedupe removes repeated boxes, keeping the first occurrence.
func dedupe(boxes []detection.Box) []detection.Box {
	seen := make(map[detection.Box]struct{}, len(boxes))
	out := boxes[:0]
	for _, b := range boxes {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
