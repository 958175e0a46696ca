package detection

import (
	"sort"

	"github.com/pkg/errors"
)

// FilterConfig holds the thresholds for the proposal filter.
type FilterConfig struct {
	// MinProba drops every box whose score is below it. Range [0, 1].
	MinProba float64 `json:"min_proba"`

	// OverlapThresh is the IoU above which a lower-scored box is suppressed
	// by a higher-scored one. Range [0, 1].
	OverlapThresh float64 `json:"overlap_thresh"`

	// Label, when set, keeps only boxes carrying this class label.
	Label string `json:"label,omitempty"`
}

// Validate reports ErrInvalidConfiguration if either threshold is outside [0, 1].
func (c FilterConfig) Validate() error {
	if !validUnit(c.MinProba) {
		return errors.Wrapf(ErrInvalidConfiguration, "min_proba %v not in [0,1]", c.MinProba)
	}
	if !validUnit(c.OverlapThresh) {
		return errors.Wrapf(ErrInvalidConfiguration, "overlap_thresh %v not in [0,1]", c.OverlapThresh)
	}
	return nil
}

// Filter runs the full proposal filter: label match, probability threshold,
// then greedy non-max suppression.
//
// The output is ordered highest score first. Running Filter again on its own
// output with the same config returns the same boxes in the same order.
//
// # Errors
//
//   - ErrInvalidConfiguration if a threshold is outside [0, 1]
//   - ErrInvalidGeometry if any surviving box is malformed
func Filter(boxes []ScoredBox, cfg FilterConfig) ([]ScoredBox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kept := boxes
	if cfg.Label != "" {
		kept = make([]ScoredBox, 0, len(boxes))
		for _, b := range boxes {
			if b.Label == cfg.Label {
				kept = append(kept, b)
			}
		}
	}

	return NonMaxSuppression(ThresholdFilter(kept, cfg.MinProba), cfg.OverlapThresh)
}

// FilterParallel is Filter for callers holding boxes and scores in two
// index-aligned slices, as classifier batches usually produce them.
func FilterParallel(boxes []Box, scores []float64, cfg FilterConfig) ([]ScoredBox, error) {
	if len(boxes) != len(scores) {
		return nil, errors.Wrapf(ErrInvalidConfiguration,
			"%d boxes but %d scores", len(boxes), len(scores))
	}
	scored := make([]ScoredBox, len(boxes))
	for i := range boxes {
		scored[i] = ScoredBox{Box: boxes[i], Score: scores[i], Label: cfg.Label}
	}
	return Filter(scored, cfg)
}

// ThresholdFilter returns the boxes whose score is at least minProba, in input order.
func ThresholdFilter(boxes []ScoredBox, minProba float64) []ScoredBox {
	out := make([]ScoredBox, 0, len(boxes))
	for _, b := range boxes {
		if b.Score >= minProba {
			out = append(out, b)
		}
	}
	return out
}

// NonMaxSuppression performs greedy non-maximum suppression.
//
// Boxes are visited from highest to lowest score. Each visited box that has not
// been suppressed is emitted, then every later box whose IoU with it is strictly
// greater than overlap is suppressed.
//
// Equal scores keep their input order (stable sort), so the result is fully
// determined by the input slice. The input slice is not modified.
func NonMaxSuppression(boxes []ScoredBox, overlap float64) ([]ScoredBox, error) {
	if !validUnit(overlap) {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "overlap_thresh %v not in [0,1]", overlap)
	}
	for _, b := range boxes {
		if err := b.Box.Validate(); err != nil {
			return nil, err
		}
	}

	order := make([]ScoredBox, len(boxes))
	copy(order, boxes)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Score > order[j].Score
	})

	suppressed := make([]bool, len(order))
	picked := make([]ScoredBox, 0, len(order))

	for i := range order {
		if suppressed[i] {
			continue
		}
		picked = append(picked, order[i])

		for j := i + 1; j < len(order); j++ {
			if !suppressed[j] && iou(order[i].Box, order[j].Box) > overlap {
				suppressed[j] = true
			}
		}
	}

	return picked, nil
}
