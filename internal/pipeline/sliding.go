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
	"github.com/ironsheep/proposal-tools-mcp/internal/imaging"
)

// SlidingWindowDetector classifies every window of every pyramid level and
// maps the target-class hits back onto the input image.
type SlidingWindowDetector struct {
	Classifier classify.Classifier
	Labels     classify.Labels
	Config     config.Config
	Logger     logrus.FieldLogger
}

// Detect runs the detector over img. Boxes in the result refer to img
// itself; Result.Scale is always 1.
func (d *SlidingWindowDetector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	if d.Classifier == nil {
		return nil, errors.New("sliding window: classifier is required")
	}
	if err := d.Config.Filter.Validate(); err != nil {
		return nil, err
	}
	want, err := target(d.Config, d.Labels)
	if err != nil {
		return nil, err
	}
	logger := loggerOrDefault(d.Logger)
	start := time.Now()

	pyr, err := imaging.NewPyramid(img, d.Config.Pyramid.Scale, d.Config.Pyramid.MinSize.Point())
	if err != nil {
		return nil, err
	}

	res := &Result{Label: want, Resized: img, Scale: 1}
	var candidates []detection.ScoredBox
	levels := 0

	for pyr.Next() {
		level := pyr.Level()
		levels++

		win, err := imaging.NewSlidingWindow(level.Image, d.Config.Window.Step, d.Config.Window.Size.Point())
		if err != nil {
			return nil, err
		}
		res.Proposals += win.Count()

		for win.Next() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			w := win.Window()
			res.Classified++

			sb, ok, err := score(ctx, d.Classifier, d.Labels, want, w.Box().Scale(level.Scale), w.Patch)
			if err != nil {
				return nil, err
			}
			if ok {
				candidates = append(candidates, sb)
			}
		}

		logger.WithFields(logrus.Fields{
			"level": level.Index,
			"scale": level.Scale,
			"size":  level.Image.Bounds().Size(),
		}).Debug("pyramid level scanned")
	}

	if err := suppress(res, candidates, d.Config.Filter); err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)

	logger.WithFields(logrus.Fields{
		"label":   want,
		"levels":  levels,
		"windows": res.Classified,
		"before":  len(res.Before),
		"after":   len(res.After),
		"elapsed": res.Elapsed,
	}).Info("sliding window detection complete")

	return res, nil
}
