package proposal

import (
	"context"
	"image"
	"math"
)

const (
	colourBins    = 25 // per Lab channel
	orientations  = 8
	magnitudeBins = 10
)

// region is a node of the grouping hierarchy.
type region struct {
	rect    image.Rectangle
	size    int
	level   int
	colour  []float64
	texture []float64
}

type regionPair struct{ a, b int }

func orderedPair(a, b int) regionPair {
	if a > b {
		a, b = b, a
	}
	return regionPair{a, b}
}

// similarity weights the terms of the merge score.
type similarity struct {
	texture bool
	imSize  float64
}

func (s similarity) score(r1, r2 *region) float64 {
	sum := histIntersect(r1.colour, r2.colour)
	if s.texture {
		sum += histIntersect(r1.texture, r2.texture)
	}
	sum += 1 - float64(r1.size+r2.size)/s.imSize
	bb := r1.rect.Union(r2.rect)
	sum += 1 - float64(bb.Dx()*bb.Dy()-r1.size-r2.size)/s.imSize
	return sum
}

func histIntersect(h1, h2 []float64) float64 {
	var s float64
	for i := range h1 {
		s += math.Min(h1[i], h2[i])
	}
	return s
}

func normalize(h []float64) {
	var sum float64
	for _, v := range h {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range h {
		h[i] /= sum
	}
}

func clampBin(v float64, bins int) int {
	b := int(v * float64(bins))
	if b < 0 {
		return 0
	}
	if b >= bins {
		return bins - 1
	}
	return b
}

// initialRegions builds one region per segment with its bounding box, size
// and normalized colour and texture histograms.
func initialRegions(li *labImage, labels []int, n int) []*region {
	w, h := li.width, li.height
	regions := make([]*region, n)
	for i := range regions {
		regions[i] = &region{
			level:   1,
			colour:  make([]float64, 3*colourBins),
			texture: make([]float64, orientations*magnitudeBins),
		}
	}

	lum := func(x, y int) float64 {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return li.pix[y*w+x][0]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			r := regions[labels[i]]
			px := image.Rect(x, y, x+1, y+1)
			if r.size == 0 {
				r.rect = px
			} else {
				r.rect = r.rect.Union(px)
			}
			r.size++

			p := li.pix[i]
			r.colour[clampBin(p[0], colourBins)]++
			r.colour[colourBins+clampBin((p[1]+1)/2, colourBins)]++
			r.colour[2*colourBins+clampBin((p[2]+1)/2, colourBins)]++

			gx := lum(x+1, y) - lum(x-1, y)
			gy := lum(x, y+1) - lum(x, y-1)
			angle := math.Atan2(gy, gx) + math.Pi
			o := clampBin(angle/(2*math.Pi), orientations)
			m := clampBin(math.Hypot(gx, gy), magnitudeBins)
			r.texture[o*magnitudeBins+m]++
		}
	}

	for _, r := range regions {
		normalize(r.colour)
		normalize(r.texture)
	}
	return regions
}

// neighbours returns every pair of 4-adjacent segments.
func neighbours(labels []int, w, h int) map[regionPair]struct{} {
	pairs := make(map[regionPair]struct{})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			l := labels[y*w+x]
			if x+1 < w && labels[y*w+x+1] != l {
				pairs[orderedPair(l, labels[y*w+x+1])] = struct{}{}
			}
			if y+1 < h && labels[(y+1)*w+x] != l {
				pairs[orderedPair(l, labels[(y+1)*w+x])] = struct{}{}
			}
		}
	}
	return pairs
}

// groupRegions greedily merges the most similar adjacent pair until a single
// region remains. The result holds every initial and merged region in
// creation order.
func groupRegions(ctx context.Context, regions []*region, adjacent map[regionPair]struct{}, sim similarity) ([]*region, error) {
	sims := make(map[regionPair]float64, len(adjacent))
	for p := range adjacent {
		sims[p] = sim.score(regions[p.a], regions[p.b])
	}

	for iter := 0; len(sims) > 0; iter++ {
		if iter%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		best := regionPair{-1, -1}
		bestScore := math.Inf(-1)
		for p, s := range sims {
			if s > bestScore || (s == bestScore && lessPair(p, best)) {
				best, bestScore = p, s
			}
		}

		r1, r2 := regions[best.a], regions[best.b]
		merged := mergeRegions(r1, r2)
		t := len(regions)
		regions = append(regions, merged)

		linked := make(map[int]struct{})
		for p := range sims {
			if p.a == best.a || p.a == best.b || p.b == best.a || p.b == best.b {
				delete(sims, p)
				for _, other := range [2]int{p.a, p.b} {
					if other != best.a && other != best.b {
						linked[other] = struct{}{}
					}
				}
			}
		}
		for other := range linked {
			sims[orderedPair(other, t)] = sim.score(regions[other], merged)
		}
	}

	return regions, nil
}

func lessPair(p, q regionPair) bool {
	if q.a < 0 {
		return true
	}
	if p.a != q.a {
		return p.a < q.a
	}
	return p.b < q.b
}

func mergeRegions(r1, r2 *region) *region {
	size := r1.size + r2.size
	w1 := float64(r1.size) / float64(size)
	w2 := float64(r2.size) / float64(size)

	m := &region{
		rect:    r1.rect.Union(r2.rect),
		size:    size,
		level:   maxInt(r1.level, r2.level) + 1,
		colour:  make([]float64, len(r1.colour)),
		texture: make([]float64, len(r1.texture)),
	}
	for i := range m.colour {
		m.colour[i] = r1.colour[i]*w1 + r2.colour[i]*w2
	}
	for i := range m.texture {
		m.texture[i] = r1.texture[i]*w1 + r2.texture[i]*w2
	}
	return m
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
