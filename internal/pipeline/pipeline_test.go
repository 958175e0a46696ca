package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/proposal-tools-mcp/internal/classify"
	"github.com/ironsheep/proposal-tools-mcp/internal/config"
	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
	"github.com/ironsheep/proposal-tools-mcp/internal/proposal"
)

var testLabels = classify.Labels{"background", "raccoon"}

func createInMemoryImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

// sizeClassifier scores patches by their dimensions so tests can steer each
// proposal to a known probability.
func sizeClassifier(scores map[image.Point]float64) classify.Classifier {
	return classify.ClassifierFunc(func(ctx context.Context, patch image.Image) ([]float64, error) {
		p, ok := scores[patch.Bounds().Size()]
		if !ok {
			return []float64{0.9, 0.1}, nil
		}
		return []float64{1 - p, p}, nil
	})
}

func fixedSource(boxes ...detection.Box) proposal.Source {
	return proposal.SourceFunc(func(ctx context.Context, img image.Image) ([]detection.Box, error) {
		return append([]detection.Box(nil), boxes...), nil
	})
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Proposals.ResizeWidth = 0
	return cfg
}

var (
	// Proposer boxes, (x, y, x+w, y+h): the crop is w x h.
	boxA = detection.BoxFromXYWH(10, 10, 40, 40) // overlaps B
	boxB = detection.BoxFromXYWH(12, 12, 40, 41)
	boxC = detection.BoxFromXYWH(60, 60, 30, 30)
	boxD = detection.BoxFromXYWH(0, 0, 5, 5)    // background
	boxE = detection.BoxFromXYWH(70, 0, 30, 20) // weak, flush with the right edge
)

func rcnnScores() map[image.Point]float64 {
	return map[image.Point]float64{
		image.Pt(40, 40): 0.995,
		image.Pt(40, 41): 0.992,
		image.Pt(30, 30): 0.999,
		image.Pt(30, 20): 0.5,
	}
}

func TestRCNN_Detect(t *testing.T) {
	r := &RCNN{
		Source:     fixedSource(boxA, boxB, boxC, boxD, boxE),
		Classifier: sizeClassifier(rcnnScores()),
		Labels:     testLabels,
		Config:     testConfig(),
	}

	res, err := r.Detect(context.Background(), createInMemoryImage(100, 100))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if res.Proposals != 5 || res.Classified != 5 {
		t.Errorf("counts: proposals %d classified %d, want 5 and 5", res.Proposals, res.Classified)
	}

	wantBefore := []detection.Box{boxA, boxB, boxC}
	if len(res.Before) != len(wantBefore) {
		t.Fatalf("before: got %v, want boxes %v", res.Before, wantBefore)
	}
	for i, b := range wantBefore {
		if res.Before[i].Box != b || res.Before[i].Label != "raccoon" {
			t.Errorf("before[%d]: got %+v, want %+v", i, res.Before[i], b)
		}
	}

	wantAfter := []detection.ScoredBox{
		{Box: boxC, Score: 0.999, Label: "raccoon"},
		{Box: boxA, Score: 0.995, Label: "raccoon"},
	}
	if len(res.After) != len(wantAfter) {
		t.Fatalf("after: got %v, want %v", res.After, wantAfter)
	}
	for i := range wantAfter {
		if res.After[i] != wantAfter[i] {
			t.Errorf("after[%d]: got %+v, want %+v", i, res.After[i], wantAfter[i])
		}
	}

	if res.Scale != 1 || res.Resized.Bounds().Dx() != 100 {
		t.Errorf("resize: scale %v width %d", res.Scale, res.Resized.Bounds().Dx())
	}
	if res.Label != "raccoon" {
		t.Errorf("label: got %q, want raccoon", res.Label)
	}
}

func TestDetectors_FilterLabelOverridesTarget(t *testing.T) {
	labels := classify.Labels{"background", "raccoon", "cat"}
	cat := classify.ClassifierFunc(func(ctx context.Context, patch image.Image) ([]float64, error) {
		return []float64{0.0005, 0.0005, 0.999}, nil
	})

	cfg := testConfig()
	cfg.Classifier.TargetLabel = "raccoon"
	cfg.Filter.Label = "cat"

	sliding := slidingConfig()
	sliding.Classifier.TargetLabel = "raccoon"
	sliding.Filter.Label = "cat"

	detectors := map[string]interface {
		Detect(ctx context.Context, img image.Image) (*Result, error)
	}{
		"rcnn":    &RCNN{Source: fixedSource(boxC), Classifier: cat, Labels: labels, Config: cfg},
		"sliding": &SlidingWindowDetector{Classifier: cat, Labels: labels, Config: sliding},
	}

	for name, d := range detectors {
		t.Run(name, func(t *testing.T) {
			res, err := d.Detect(context.Background(), createInMemoryImage(150, 150))
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if res.Label != "cat" {
				t.Errorf("label: got %q, want cat", res.Label)
			}
			if len(res.After) == 0 {
				t.Fatal("expected cat detections")
			}
			for _, b := range res.After {
				if b.Label != "cat" {
					t.Errorf("box labelled %q, want cat", b.Label)
				}
			}
		})
	}
}

func TestRCNN_CropsProposalWidthByHeight(t *testing.T) {
	var sizes []image.Point
	c := classify.ClassifierFunc(func(ctx context.Context, patch image.Image) ([]float64, error) {
		sizes = append(sizes, patch.Bounds().Size())
		return []float64{1, 0}, nil
	})

	r := &RCNN{
		Source:     fixedSource(detection.BoxFromXYWH(10, 20, 40, 30), detection.BoxFromXYWH(60, 70, 40, 30)),
		Classifier: c,
		Labels:     testLabels,
		Config:     testConfig(),
	}
	if _, err := r.Detect(context.Background(), createInMemoryImage(100, 100)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	want := []image.Point{image.Pt(40, 30), image.Pt(40, 30)}
	if len(sizes) != len(want) {
		t.Fatalf("classified %d patches, want %d", len(sizes), len(want))
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("patch %d: got %v, want %v", i, sizes[i], want[i])
		}
	}
}

func TestRCNN_ResizesBeforeProposing(t *testing.T) {
	var seen image.Point
	src := proposal.SourceFunc(func(ctx context.Context, img image.Image) ([]detection.Box, error) {
		seen = img.Bounds().Size()
		return nil, nil
	})

	cfg := testConfig()
	cfg.Proposals.ResizeWidth = 50

	r := &RCNN{Source: src, Classifier: sizeClassifier(nil), Labels: testLabels, Config: cfg}
	res, err := r.Detect(context.Background(), createInMemoryImage(100, 80))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if seen != image.Pt(50, 40) {
		t.Errorf("source saw %v, want 50x40", seen)
	}
	if res.Scale != 2 {
		t.Errorf("scale: got %v, want 2", res.Scale)
	}
	if len(res.Before) != 0 || len(res.After) != 0 {
		t.Errorf("expected no detections, got %v / %v", res.Before, res.After)
	}
}

func TestRCNN_CapsProposals(t *testing.T) {
	cfg := testConfig()
	cfg.Proposals.MaxProposalsInfer = 2

	r := &RCNN{
		Source:     fixedSource(boxD, boxE, boxC),
		Classifier: sizeClassifier(rcnnScores()),
		Labels:     testLabels,
		Config:     cfg,
	}
	res, err := r.Detect(context.Background(), createInMemoryImage(100, 100))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Proposals != 3 || res.Classified != 2 {
		t.Errorf("counts: proposals %d classified %d, want 3 and 2", res.Proposals, res.Classified)
	}
	// boxC was past the cap.
	if len(res.After) != 0 {
		t.Errorf("after: got %v, want none", res.After)
	}
}

func TestRCNN_SkipsBoxesOutsideImage(t *testing.T) {
	outside := detection.Box{X1: 200, Y1: 200, X2: 250, Y2: 250}
	r := &RCNN{
		Source:     fixedSource(outside, boxC),
		Classifier: sizeClassifier(rcnnScores()),
		Labels:     testLabels,
		Config:     testConfig(),
	}
	res, err := r.Detect(context.Background(), createInMemoryImage(100, 100))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Classified != 1 || len(res.After) != 1 || res.After[0].Box != boxC {
		t.Errorf("got classified %d after %v", res.Classified, res.After)
	}
}

func TestRCNN_Errors(t *testing.T) {
	img := createInMemoryImage(100, 100)
	boom := errors.New("boom")

	tests := []struct {
		name   string
		build  func() *RCNN
		target error
	}{
		{
			name: "unknown target label",
			build: func() *RCNN {
				cfg := testConfig()
				cfg.Classifier.TargetLabel = "dog"
				return &RCNN{Source: fixedSource(boxA), Classifier: sizeClassifier(nil), Labels: testLabels, Config: cfg}
			},
			target: detection.ErrInvalidConfiguration,
		},
		{
			name: "bad threshold",
			build: func() *RCNN {
				cfg := testConfig()
				cfg.Filter.MinProba = 2
				return &RCNN{Source: fixedSource(boxA), Classifier: sizeClassifier(nil), Labels: testLabels, Config: cfg}
			},
			target: detection.ErrInvalidConfiguration,
		},
		{
			name: "source failure",
			build: func() *RCNN {
				src := proposal.SourceFunc(func(ctx context.Context, img image.Image) ([]detection.Box, error) {
					return nil, boom
				})
				return &RCNN{Source: src, Classifier: sizeClassifier(nil), Labels: testLabels, Config: testConfig()}
			},
			target: boom,
		},
		{
			name: "classifier failure",
			build: func() *RCNN {
				c := classify.ClassifierFunc(func(ctx context.Context, patch image.Image) ([]float64, error) {
					return nil, boom
				})
				return &RCNN{Source: fixedSource(boxA), Classifier: c, Labels: testLabels, Config: testConfig()}
			},
			target: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Detect(context.Background(), img)
			if !errors.Is(err, tt.target) {
				t.Errorf("got %v, want %v", err, tt.target)
			}
		})
	}
}

func TestRCNN_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &RCNN{Source: fixedSource(boxA), Classifier: sizeClassifier(nil), Labels: testLabels, Config: testConfig()}
	if _, err := r.Detect(ctx, createInMemoryImage(100, 100)); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func slidingConfig() config.Config {
	cfg := config.Default()
	cfg.Pyramid.MinSize = config.Size{Width: 100, Height: 100}
	cfg.Window.Size = config.Size{Width: 100, Height: 100}
	cfg.Window.Step = 50
	return cfg
}

func TestSlidingWindowDetector_MapsBoxesByScale(t *testing.T) {
	always := classify.ClassifierFunc(func(ctx context.Context, patch image.Image) ([]float64, error) {
		return []float64{0.001, 0.999}, nil
	})

	d := &SlidingWindowDetector{Classifier: always, Labels: testLabels, Config: slidingConfig()}
	res, err := d.Detect(context.Background(), createInMemoryImage(300, 300))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// Levels 300, 200 and 133 pixels wide: 16 + 4 + 1 windows.
	if res.Proposals != 21 || res.Classified != 21 {
		t.Errorf("counts: proposals %d classified %d, want 21 and 21", res.Proposals, res.Classified)
	}
	if len(res.Before) != 21 {
		t.Fatalf("before: got %d boxes, want 21", len(res.Before))
	}

	wantLevel1 := detection.Box{X1: 0, Y1: 0, X2: 148, Y2: 148}
	found := false
	for _, b := range res.Before {
		if b.Box == wantLevel1 {
			found = true
		}
		if b.Box.X1 < 0 || b.Box.Y1 < 0 || b.Box.X2 >= 300 || b.Box.Y2 >= 300 {
			t.Errorf("box %+v outside the input image", b.Box)
		}
	}
	if !found {
		t.Errorf("expected level-1 window mapped to %+v", wantLevel1)
	}

	if len(res.After) == 0 || len(res.After) >= len(res.Before) {
		t.Errorf("NMS should keep some but not all boxes: %d of %d", len(res.After), len(res.Before))
	}
	if res.Scale != 1 {
		t.Errorf("scale: got %v, want 1", res.Scale)
	}
}

func TestSlidingWindowDetector_NoHits(t *testing.T) {
	d := &SlidingWindowDetector{Classifier: sizeClassifier(nil), Labels: testLabels, Config: slidingConfig()}
	res, err := d.Detect(context.Background(), createInMemoryImage(150, 150))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Before) != 0 || len(res.After) != 0 {
		t.Errorf("expected no detections, got %v / %v", res.Before, res.After)
	}
}

func TestSlidingWindowDetector_InvalidConfig(t *testing.T) {
	cfg := slidingConfig()
	cfg.Window.Step = 0

	d := &SlidingWindowDetector{Classifier: sizeClassifier(nil), Labels: testLabels, Config: cfg}
	if _, err := d.Detect(context.Background(), createInMemoryImage(150, 150)); !errors.Is(err, detection.ErrInvalidConfiguration) {
		t.Errorf("got %v, want ErrInvalidConfiguration", err)
	}
}
