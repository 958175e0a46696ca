package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"

	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// Level selects the granularity of recognized regions.
type Level int

const (
	// LevelWord yields one region per recognized word.
	LevelWord Level = iota
	// LevelLine yields one region per text line.
	LevelLine
	// LevelBlock yields paragraph-like blocks.
	LevelBlock
)

func (l Level) iteratorLevel() gosseract.PageIteratorLevel {
	switch l {
	case LevelLine:
		return gosseract.RIL_TEXTLINE
	case LevelBlock:
		return gosseract.RIL_BLOCK
	default:
		return gosseract.RIL_WORD
	}
}

// ParseLevel maps "word", "line" or "block" to a Level. Empty means word.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "word":
		return LevelWord, nil
	case "line":
		return LevelLine, nil
	case "block":
		return LevelBlock, nil
	}
	return LevelWord, errors.Wrapf(detection.ErrInvalidConfiguration, "unknown text level %q", s)
}

// TextRegion is a recognized region of text.
type TextRegion struct {
	// Text is the recognized content. Empty for block-level regions when
	// Tesseract reports none.
	Text string `json:"text"`

	// Confidence is Tesseract's confidence scaled to [0, 1].
	Confidence float64 `json:"confidence"`

	// Box encloses the region in inclusive pixel coordinates.
	Box detection.Box `json:"box"`
}

// Recognizer runs Tesseract over in-memory images.
//
// A Recognizer holds no Tesseract state between calls; each call creates and
// closes its own client, so a Recognizer may be shared between goroutines.
type Recognizer struct {
	Language string
	Level    Level

	// MinConfidence drops regions scored below it (0 to 1).
	MinConfidence float64
}

// NewRecognizer returns a word-level recognizer for language.
func NewRecognizer(language string) *Recognizer {
	if language == "" {
		language = "eng"
	}
	return &Recognizer{Language: language, Level: LevelWord}
}

// Regions recognizes text in img and returns its regions in reading order.
//
// Boxes are relative to img.Bounds().Min. Regions whose text is empty are
// skipped at word level; block and line regions are kept regardless.
func (r *Recognizer) Regions(ctx context.Context, img image.Image) ([]TextRegion, error) {
	if img == nil {
		return nil, errors.Wrap(detection.ErrInvalidGeometry, "nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "failed to encode image for OCR")
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.Language); err != nil {
		return nil, errors.Wrap(err, "failed to set language")
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "failed to set image")
	}

	boxes, err := client.GetBoundingBoxes(r.Level.iteratorLevel())
	if err != nil {
		return nil, errors.Wrap(err, "OCR failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	regions := make([]TextRegion, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if r.Level == LevelWord && text == "" {
			continue
		}
		conf := b.Confidence / 100.0
		if conf < r.MinConfidence {
			continue
		}
		if b.Box.Dx() <= 0 || b.Box.Dy() <= 0 {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       text,
			Confidence: conf,
			Box:        detection.BoxFromRect(b.Box),
		})
	}
	return regions, nil
}

// Version reports the linked Tesseract version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
