package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/proposal-tools-mcp/internal/classify"
	"github.com/ironsheep/proposal-tools-mcp/internal/config"
	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// Result is the outcome of one detection run.
type Result struct {
	// Label is the class the detector kept.
	Label string `json:"label"`

	// Before holds every classified region that passed the probability
	// threshold, in classification order.
	Before []detection.ScoredBox `json:"before"`

	// After holds the non-max suppression survivors, highest score first.
	After []detection.ScoredBox `json:"after"`

	// Proposals is the number of candidate regions generated.
	Proposals int `json:"proposals"`

	// Classified is the number of candidates actually sent to the classifier.
	Classified int `json:"classified"`

	// Resized is the image the boxes refer to.
	Resized image.Image `json:"-"`

	// Scale maps boxes onto the input image: box.Scale(Scale).
	Scale float64 `json:"scale"`

	Elapsed time.Duration `json:"elapsed"`
}

// target resolves the class the detectors keep and checks that the
// classifier knows it.
func target(cfg config.Config, labels classify.Labels) (string, error) {
	label := cfg.Filter.Label
	if label == "" {
		label = cfg.Classifier.TargetLabel
	}
	if label == "" {
		return "", errors.Wrap(detection.ErrInvalidConfiguration, "no target label")
	}
	if labels.Index(label) < 0 {
		return "", errors.Wrapf(detection.ErrInvalidConfiguration, "target label %q not in classifier labels", label)
	}
	return label, nil
}

// score classifies patch and returns a ScoredBox when the top class is want.
func score(ctx context.Context, c classify.Classifier, labels classify.Labels, want string, box detection.Box, patch image.Image) (detection.ScoredBox, bool, error) {
	probs, err := c.Classify(ctx, patch)
	if err != nil {
		return detection.ScoredBox{}, false, errors.Wrap(err, "classification failed")
	}
	idx, label := labels.Argmax(probs)
	if idx < 0 || label != want {
		return detection.ScoredBox{}, false, nil
	}
	return detection.ScoredBox{Box: box, Score: probs[idx], Label: label}, true, nil
}

// suppress applies the probability threshold and then NMS, filling in the
// Before and After fields of res.
func suppress(res *Result, candidates []detection.ScoredBox, cfg detection.FilterConfig) error {
	res.Before = detection.ThresholdFilter(candidates, cfg.MinProba)
	after, err := detection.NonMaxSuppression(res.Before, cfg.OverlapThresh)
	if err != nil {
		return err
	}
	res.After = after
	return nil
}

func loggerOrDefault(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
