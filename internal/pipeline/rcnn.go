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
	"github.com/ironsheep/proposal-tools-mcp/internal/proposal"
)

// RCNN is a two-stage detector: a proposal source suggests regions, each
// region is cropped and classified, and the target-class hits are filtered.
type RCNN struct {
	Source     proposal.Source
	Classifier classify.Classifier
	Labels     classify.Labels
	Config     config.Config
	Logger     logrus.FieldLogger
}

// Detect runs the detector over img.
//
// The image is first resized to Config.Proposals.ResizeWidth (when set) and
// all boxes in the result refer to Result.Resized. At most
// Config.Proposals.MaxProposalsInfer proposals are classified, in the order
// the source returned them.
func (r *RCNN) Detect(ctx context.Context, img image.Image) (*Result, error) {
	if r.Source == nil || r.Classifier == nil {
		return nil, errors.New("rcnn: source and classifier are required")
	}
	if err := r.Config.Filter.Validate(); err != nil {
		return nil, err
	}
	want, err := target(r.Config, r.Labels)
	if err != nil {
		return nil, err
	}
	logger := loggerOrDefault(r.Logger)
	start := time.Now()

	res := &Result{Label: want, Resized: img, Scale: 1}
	if w := r.Config.Proposals.ResizeWidth; w > 0 {
		resized, factor, err := imaging.ResizeToWidth(img, w)
		if err != nil {
			return nil, err
		}
		res.Resized, res.Scale = resized, factor
	}

	boxes, err := r.Source.Propose(ctx, res.Resized)
	if err != nil {
		return nil, errors.Wrap(err, "region proposal failed")
	}
	res.Proposals = len(boxes)
	if limit := r.Config.Proposals.MaxProposalsInfer; limit > 0 && len(boxes) > limit {
		boxes = boxes[:limit]
	}
	logger.WithFields(logrus.Fields{
		"proposals":  res.Proposals,
		"classified": len(boxes),
		"elapsed":    time.Since(start),
	}).Info("region proposals generated")

	var candidates []detection.ScoredBox
	for _, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		patch, err := imaging.CropProposal(res.Resized, box)
		if err != nil {
			logger.WithError(err).WithField("box", box).Debug("skipping proposal")
			continue
		}
		res.Classified++

		sb, ok, err := score(ctx, r.Classifier, r.Labels, want, box, patch)
		if err != nil {
			return nil, err
		}
		if ok {
			candidates = append(candidates, sb)
		}
	}

	if err := suppress(res, candidates, r.Config.Filter); err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)

	logger.WithFields(logrus.Fields{
		"label":   want,
		"matches": len(candidates),
		"before":  len(res.Before),
		"after":   len(res.After),
		"elapsed": res.Elapsed,
	}).Info("rcnn detection complete")

	return res, nil
}
