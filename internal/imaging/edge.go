package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// EdgeMap is a binary edge image. Coordinates are relative to the source
// image origin.
type EdgeMap struct {
	Width  int
	Height int
	edges  []bool
}

// At reports whether (x, y) is an edge pixel. Out-of-range points are not edges.
func (m *EdgeMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.edges[y*m.Width+x]
}

// Count returns the number of edge pixels.
func (m *EdgeMap) Count() int {
	n := 0
	for _, e := range m.edges {
		if e {
			n++
		}
	}
	return n
}

// Image renders the map as grayscale, edges white on black.
func (m *EdgeMap) Image() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, e := range m.edges {
		if e {
			out.Pix[i] = 255
		}
	}
	return out
}

// CannyEdges runs Canny edge detection and returns the binary edge map.
//
// Parameters:
//   - img: Source image (color or grayscale).
//   - thresholdLow: Weak-edge gradient threshold (0-255). Typical: 50.
//   - thresholdHigh: Strong-edge gradient threshold (0-255). Typical: 150.
//
// # Algorithm
//
//  1. Gaussian blur (sigma 1.4) and grayscale conversion
//  2. Sobel gradients: magnitude sqrt(Gx² + Gy²), direction atan2(Gy, Gx)
//  3. Non-maximum suppression along the gradient direction, quantized to
//     0°, 45°, 90° and 135°
//  4. Hysteresis: strong pixels are kept, weak pixels are kept only when one
//     of their 8 neighbours is strong
//
// Border pixels are never edges.
func CannyEdges(img image.Image, thresholdLow, thresholdHigh int) *EdgeMap {
	gray := effect.Grayscale(blur.Gaussian(img, 1.4))
	gb := gray.Bounds()
	width := gb.Dx()
	height := gb.Dy()

	lum := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		// Grayscale leaves R == G == B
		return float64(gray.RGBAAt(gb.Min.X+x, gb.Min.Y+y).R) / 255.0
	}

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := -lum(x-1, y-1) + lum(x+1, y-1) -
				2*lum(x-1, y) + 2*lum(x+1, y) -
				lum(x-1, y+1) + lum(x+1, y+1)
			gy := -lum(x-1, y-1) - 2*lum(x, y-1) - lum(x+1, y-1) +
				lum(x-1, y+1) + 2*lum(x, y+1) + lum(x+1, y+1)
			magnitude[y*width+x] = math.Sqrt(gx*gx + gy*gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	mag := func(x, y int) float64 { return magnitude[y*width+x] }

	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			angle := direction[y*width+x]
			m := mag(x, y)

			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1, n2 = mag(x-1, y), mag(x+1, y)
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1, n2 = mag(x+1, y-1), mag(x-1, y+1)
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1, n2 = mag(x, y-1), mag(x, y+1)
			default:
				n1, n2 = mag(x-1, y-1), mag(x+1, y+1)
			}

			if m >= n1 && m >= n2 {
				suppressed[y*width+x] = m
			}
		}
	}

	low := float64(thresholdLow) / 255.0
	high := float64(thresholdHigh) / 255.0
	out := &EdgeMap{Width: width, Height: height, edges: make([]bool, width*height)}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := suppressed[y*width+x]
			switch {
			case v >= high:
				out.edges[y*width+x] = true
			case v >= low:
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						py := clamp(y+ky, 0, height-1)
						px := clamp(x+kx, 0, width-1)
						if suppressed[py*width+px] >= high {
							out.edges[y*width+x] = true
						}
					}
				}
			}
		}
	}

	return out
}

// DefaultGradientThreshold is the luminance step GradientEdges treats as an
// edge.
const DefaultGradientThreshold = 30

// GradientEdges marks pixels whose luminance differs from the right or lower
// neighbour by more than threshold (0-255).
//
// There is no blur and no thinning, so a filled shape yields a closed
// outline one pixel outside its left and top edges and along its right and
// bottom edges. Border pixels are never edges.
func GradientEdges(img image.Image, threshold int) *EdgeMap {
	gray := effect.Grayscale(img)
	gb := gray.Bounds()
	width := gb.Dx()
	height := gb.Dy()
	out := &EdgeMap{Width: width, Height: height, edges: make([]bool, width*height)}

	lum := func(x, y int) int {
		return int(gray.RGBAAt(gb.Min.X+x, gb.Min.Y+y).R)
	}
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			c := lum(x, y)
			if abs(c-lum(x+1, y)) > threshold || abs(c-lum(x, y+1)) > threshold {
				out.edges[y*width+x] = true
			}
		}
	}
	return out
}

// clamp constrains val to [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
