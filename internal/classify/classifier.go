package classify

import (
	"context"
	"encoding/json"
	"image"
	"os"

	"github.com/pkg/errors"
)

// DefaultInputSize is the MobileNetV2 input resolution.
var DefaultInputSize = image.Pt(224, 224)

// Classifier scores an image patch against a fixed, ordered set of classes.
//
// Classify returns one probability per class, in the order of the Labels the
// classifier was built with. Implementations resize patches to InputSize
// themselves; callers pass raw crops.
type Classifier interface {
	Classify(ctx context.Context, patch image.Image) ([]float64, error)
	InputSize() image.Point
}

// ClassifierFunc adapts a function to the Classifier interface. Its input
// size is DefaultInputSize.
type ClassifierFunc func(ctx context.Context, patch image.Image) ([]float64, error)

// Classify calls f(ctx, patch).
func (f ClassifierFunc) Classify(ctx context.Context, patch image.Image) ([]float64, error) {
	return f(ctx, patch)
}

// InputSize returns DefaultInputSize.
func (f ClassifierFunc) InputSize() image.Point { return DefaultInputSize }

// Labels is the ordered list of class names matching classifier output.
type Labels []string

// LoadLabels reads a JSON array of class names.
func LoadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read labels")
	}
	var labels Labels
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, errors.Wrapf(err, "failed to parse labels %s", path)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

// Argmax returns the index of the highest probability and its label. The
// first index wins ties. It returns (-1, "") for empty input, and an empty
// label when the index has no name.
func (l Labels) Argmax(probs []float64) (int, string) {
	if len(probs) == 0 {
		return -1, ""
	}
	best := 0
	for i, p := range probs[1:] {
		if p > probs[best] {
			best = i + 1
		}
	}
	if best >= len(l) {
		return best, ""
	}
	return best, l[best]
}

// Index returns the position of label, or -1.
func (l Labels) Index(label string) int {
	for i, name := range l {
		if name == label {
			return i
		}
	}
	return -1
}
