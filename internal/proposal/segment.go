package proposal

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// labImage holds an image converted to CIE-Lab, row-major, origin at (0, 0).
type labImage struct {
	width, height int
	pix           [][3]float64 // L, a, b
}

func newLabImage(img image.Image) *labImage {
	b := img.Bounds()
	li := &labImage{
		width:  b.Dx(),
		height: b.Dy(),
		pix:    make([][3]float64, b.Dx()*b.Dy()),
	}
	for y := 0; y < li.height; y++ {
		for x := 0; x < li.width; x++ {
			c, ok := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
			if !ok {
				// Fully transparent; MakeColor refuses to un-premultiply.
				c, _ = colorful.MakeColor(color.Black)
			}
			l, a, bb := c.Lab()
			li.pix[y*li.width+x] = [3]float64{l, a, bb}
		}
	}
	return li
}

// dist is the Euclidean Lab distance between two pixels.
func (li *labImage) dist(i, j int) float64 {
	p, q := li.pix[i], li.pix[j]
	dl, da, db := p[0]-q[0], p[1]-q[1], p[2]-q[2]
	return math.Sqrt(dl*dl + da*da + db*db)
}

// labScale maps go-colorful Lab distances (L in [0,1]) onto the 0-255 range
// the segmentation constant k is tuned for.
const labScale = 255.0

// disjointSet is a union-find forest with union by rank and path compression.
// Each root also tracks its component size.
type disjointSet struct {
	parent []int
	rank   []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{
		parent: make([]int, n),
		rank:   make([]int, n),
		size:   make([]int, n),
	}
	for i := range ds.parent {
		ds.parent[i] = i
		ds.size[i] = 1
	}
	return ds
}

func (ds *disjointSet) find(x int) int {
	root := x
	for ds.parent[root] != root {
		root = ds.parent[root]
	}
	for ds.parent[x] != root {
		next := ds.parent[x]
		ds.parent[x] = root
		x = next
	}
	return root
}

// union joins the sets rooted at a and b and returns the new root.
func (ds *disjointSet) union(a, b int) int {
	if ds.rank[a] < ds.rank[b] {
		a, b = b, a
	}
	ds.parent[b] = a
	ds.size[a] += ds.size[b]
	if ds.rank[a] == ds.rank[b] {
		ds.rank[a]++
	}
	return a
}

type graphEdge struct {
	a, b int
	w    float64
}

// segmentGraph runs Felzenszwalb-Huttenlocher graph segmentation over the
// 8-connected pixel grid.
//
// Two components merge when the edge joining them is no heavier than either
// component's internal difference plus k/size. Components smaller than
// minSize are then absorbed along the lightest remaining edges.
//
// It returns one label per pixel, numbered 0..n-1 in scan order, and n.
func segmentGraph(li *labImage, k float64, minSize int) ([]int, int) {
	w, h := li.width, li.height
	n := w * h

	edges := make([]graphEdge, 0, n*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if x+1 < w {
				edges = append(edges, graphEdge{i, i + 1, li.dist(i, i+1) * labScale})
			}
			if y+1 < h {
				edges = append(edges, graphEdge{i, i + w, li.dist(i, i+w) * labScale})
			}
			if x+1 < w && y+1 < h {
				edges = append(edges, graphEdge{i, i + w + 1, li.dist(i, i+w+1) * labScale})
			}
			if x+1 < w && y > 0 {
				edges = append(edges, graphEdge{i, i - w + 1, li.dist(i, i-w+1) * labScale})
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].w < edges[j].w })

	ds := newDisjointSet(n)
	threshold := make([]float64, n)
	for i := range threshold {
		threshold[i] = k
	}

	for _, e := range edges {
		a, b := ds.find(e.a), ds.find(e.b)
		if a == b {
			continue
		}
		if e.w <= threshold[a] && e.w <= threshold[b] {
			r := ds.union(a, b)
			threshold[r] = e.w + k/float64(ds.size[r])
		}
	}

	for _, e := range edges {
		a, b := ds.find(e.a), ds.find(e.b)
		if a != b && (ds.size[a] < minSize || ds.size[b] < minSize) {
			ds.union(a, b)
		}
	}

	labels := make([]int, n)
	ids := make(map[int]int)
	for i := 0; i < n; i++ {
		root := ds.find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, len(ids)
}
