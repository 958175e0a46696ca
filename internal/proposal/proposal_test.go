package proposal

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/proposal-tools-mcp/internal/config"
	"github.com/ironsheep/proposal-tools-mcp/internal/detection"
)

// createTwoColourImage returns a w x h image, red on the left half and blue
// on the right half.
func createTwoColourImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}
	return img
}

// createSquareImage draws a filled black square on a white background.
func createSquareImage(size int, square image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if image.Pt(x, y).In(square) {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func createUniformImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// bestIoU returns the highest IoU between target and any of boxes.
func bestIoU(t *testing.T, boxes []detection.Box, target detection.Box) float64 {
	t.Helper()
	best := 0.0
	for _, b := range boxes {
		v, err := detection.IoU(b, target)
		if err != nil {
			t.Fatalf("IoU(%+v, %+v): %v", b, target, err)
		}
		if v > best {
			best = v
		}
	}
	return best
}

func TestSelectiveSearch_CoversColourBlocks(t *testing.T) {
	img := createTwoColourImage(60, 40)
	red := detection.Box{X1: 0, Y1: 0, X2: 29, Y2: 39}
	blue := detection.Box{X1: 30, Y1: 0, X2: 59, Y2: 39}

	for _, mode := range []Mode{Fast, Quality} {
		t.Run(mode.String(), func(t *testing.T) {
			ss := &SelectiveSearch{Mode: mode}
			boxes, err := ss.Propose(context.Background(), img)
			if err != nil {
				t.Fatalf("Propose failed: %v", err)
			}
			if len(boxes) == 0 {
				t.Fatal("expected proposals")
			}

			if got := bestIoU(t, boxes, red); got < 0.8 {
				t.Errorf("red block best IoU = %.3f, want >= 0.8", got)
			}
			if got := bestIoU(t, boxes, blue); got < 0.8 {
				t.Errorf("blue block best IoU = %.3f, want >= 0.8", got)
			}

			// The root of the hierarchy spans the whole image.
			whole := detection.BoxFromXYWH(0, 0, 60, 40)
			found := false
			for _, b := range boxes {
				if b == whole {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a whole-image proposal %+v in %v", whole, boxes)
			}
		})
	}
}

func TestSelectiveSearch_NoDuplicates(t *testing.T) {
	boxes, err := (&SelectiveSearch{Mode: Quality}).Propose(context.Background(), createTwoColourImage(40, 30))
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	seen := make(map[detection.Box]bool)
	for _, b := range boxes {
		if seen[b] {
			t.Errorf("duplicate proposal %+v", b)
		}
		seen[b] = true
	}
}

func TestSelectiveSearch_RegionsOrderedByLevel(t *testing.T) {
	img := createSquareImage(48, image.Rect(10, 10, 30, 30))

	regions, err := (&SelectiveSearch{}).Regions(context.Background(), img)
	if err != nil {
		t.Fatalf("Regions failed: %v", err)
	}
	for i := 1; i < len(regions); i++ {
		if regions[i].Level < regions[i-1].Level {
			t.Fatalf("region %d level %d after level %d", i, regions[i].Level, regions[i-1].Level)
		}
	}
	last := regions[len(regions)-1]
	if last.Size != 48*48 {
		t.Errorf("top region size: got %d, want %d", last.Size, 48*48)
	}
}

func TestSelectiveSearch_UniformImage(t *testing.T) {
	img := createUniformImage(20, 10, color.RGBA{90, 90, 90, 255})

	boxes, err := (&SelectiveSearch{}).Propose(context.Background(), img)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	want := detection.BoxFromXYWH(0, 0, 20, 10)
	if len(boxes) != 1 || boxes[0] != want {
		t.Errorf("got %v, want [%+v]", boxes, want)
	}
}

func TestSelectiveSearch_MinSize(t *testing.T) {
	ss := &SelectiveSearch{MinSize: image.Pt(100, 100)}
	boxes, err := ss.Propose(context.Background(), createTwoColourImage(60, 40))
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("MinSize larger than the image should drop everything, got %v", boxes)
	}
}

func TestSelectiveSearch_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&SelectiveSearch{}).Propose(ctx, createTwoColourImage(20, 20)); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v, want context.Canceled", err)
	}

	if _, err := (&SelectiveSearch{}).Propose(context.Background(), nil); !errors.Is(err, detection.ErrInvalidGeometry) {
		t.Errorf("nil image: got %v, want ErrInvalidGeometry", err)
	}

	empty := image.NewRGBA(image.Rect(0, 0, 0, 5))
	if _, err := (&SelectiveSearch{}).Propose(context.Background(), empty); !errors.Is(err, detection.ErrInvalidGeometry) {
		t.Errorf("empty image: got %v, want ErrInvalidGeometry", err)
	}

	if _, err := (&SelectiveSearch{Sigma: -1}).Propose(context.Background(), createTwoColourImage(20, 20)); !errors.Is(err, detection.ErrInvalidConfiguration) {
		t.Errorf("negative sigma: got %v, want ErrInvalidConfiguration", err)
	}
}

func TestSegmentGraph_TwoBlocks(t *testing.T) {
	li := newLabImage(createTwoColourImage(20, 10))

	labels, n := segmentGraph(li, 100, 10)
	if n != 2 {
		t.Fatalf("segments: got %d, want 2", n)
	}
	if labels[0] == labels[19] {
		t.Error("left and right edges should be in different segments")
	}
	if labels[0] != labels[9*20+5] {
		t.Error("pixels of the same block should share a segment")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Fast, false},
		{"fast", Fast, false},
		{"Quality", Quality, false},
		{"thorough", Fast, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEdgeContours_Square(t *testing.T) {
	img := createSquareImage(80, image.Rect(20, 20, 60, 60))
	square := detection.Box{X1: 20, Y1: 20, X2: 59, Y2: 59}

	boxes, err := (&EdgeContours{}).Propose(context.Background(), img)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(boxes) != 1 {
		t.Fatalf("a filled square has one closed outline, got %v", boxes)
	}
	if got := bestIoU(t, boxes, square); got < 0.8 {
		t.Errorf("best IoU with square = %.3f, want >= 0.8 (boxes %v)", got, boxes)
	}
}

func TestEdgeContours_CannyJoinsCorners(t *testing.T) {
	img := createSquareImage(80, image.Rect(20, 20, 60, 60))

	boxes, err := (&EdgeContours{Detector: DetectCanny}).Propose(context.Background(), img)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	// The four sides must come back as one contour around the whole square,
	// not as separate strips.
	for _, b := range boxes {
		if b.X1 <= 20 && b.Y1 <= 20 && b.X2 >= 59 && b.Y2 >= 59 {
			return
		}
	}
	t.Errorf("no box encloses the square: %v", boxes)
}

func TestParseEdgeDetector(t *testing.T) {
	tests := []struct {
		in      string
		want    EdgeDetector
		wantErr bool
	}{
		{"", DetectGradient, false},
		{"gradient", DetectGradient, false},
		{" Canny ", DetectCanny, false},
		{"sobel", DetectGradient, true},
	}

	for _, tt := range tests {
		got, err := ParseEdgeDetector(tt.in)
		if tt.wantErr {
			if !errors.Is(err, detection.ErrInvalidConfiguration) {
				t.Errorf("ParseEdgeDetector(%q): got %v, want ErrInvalidConfiguration", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseEdgeDetector(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestEdgeContours_UniformImage(t *testing.T) {
	boxes, err := (&EdgeContours{}).Propose(context.Background(), createUniformImage(40, 40, color.White))
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("uniform image: got %v, want none", boxes)
	}
}

func TestEdgeContours_InvalidThresholds(t *testing.T) {
	tests := []struct {
		name      string
		low, high int
	}{
		{"low above high", 200, 100},
		{"negative low", -1, 100},
		{"high above 255", 50, 300},
	}
	// Gradient threshold out of range
	if _, err := (&EdgeContours{Threshold: 300}).Propose(context.Background(), createUniformImage(10, 10, color.White)); !errors.Is(err, detection.ErrInvalidConfiguration) {
		t.Errorf("threshold 300: got %v, want ErrInvalidConfiguration", err)
	}

	img := createUniformImage(10, 10, color.White)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&EdgeContours{Low: tt.low, High: tt.high}).Propose(context.Background(), img)
			if !errors.Is(err, detection.ErrInvalidConfiguration) {
				t.Errorf("got %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestTextWords_NilImage(t *testing.T) {
	_, err := (&TextWords{}).Propose(context.Background(), nil)
	if !errors.Is(err, detection.ErrInvalidGeometry) {
		t.Errorf("got %v, want ErrInvalidGeometry", err)
	}
}

func TestSourceByName(t *testing.T) {
	cfg := config.Default().Proposals

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "*proposal.SelectiveSearch", false},
		{"selective_search", "*proposal.SelectiveSearch", false},
		{"edges", "*proposal.EdgeContours", false},
		{"text_words", "*proposal.TextWords", false},
		{"sift", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := SourceByName(tt.name, cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, detection.ErrInvalidConfiguration) {
					t.Errorf("got %v, want ErrInvalidConfiguration", err)
				}
				return
			}
			if got := fmt.Sprintf("%T", src); got != tt.want {
				t.Errorf("type: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSourceByName_QualityMode(t *testing.T) {
	cfg := config.Default().Proposals
	cfg.Method = "quality"

	src, err := SourceByName(NameSelectiveSearch, cfg)
	if err != nil {
		t.Fatalf("SourceByName failed: %v", err)
	}
	ss, ok := src.(*SelectiveSearch)
	if !ok || ss.Mode != Quality {
		t.Errorf("got %#v, want quality selective search", src)
	}
	if ss.MinSize != image.Pt(5, 5) {
		t.Errorf("min size: got %v", ss.MinSize)
	}

	cfg.Method = "bogus"
	if _, err := SourceByName(NameSelectiveSearch, cfg); !errors.Is(err, detection.ErrInvalidConfiguration) {
		t.Errorf("bad method: got %v, want ErrInvalidConfiguration", err)
	}
}

func TestSourceFunc(t *testing.T) {
	want := []detection.Box{{X1: 1, Y1: 2, X2: 3, Y2: 4}}
	var src Source = SourceFunc(func(ctx context.Context, img image.Image) ([]detection.Box, error) {
		return want, nil
	})
	got, err := src.Propose(context.Background(), nil)
	if err != nil || len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestDedupe(t *testing.T) {
	a := detection.Box{X1: 0, Y1: 0, X2: 5, Y2: 5}
	b := detection.Box{X1: 1, Y1: 1, X2: 6, Y2: 6}

	got := dedupe([]detection.Box{a, b, a, b, a})
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("got %v, want [a b]", got)
	}
}
