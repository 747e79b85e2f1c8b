// Package kdindex wraps a gonum k-d tree over fixed-dimension points that
// remember their position in the caller's slice.
package kdindex

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a query result. Dist is the squared Euclidean distance.
type Neighbor struct {
	Idx  int
	Dist float64
}

// Index answers nearest-neighbour queries over a fixed point set.
type Index struct {
	tree *kdtree.Tree
	n    int
}

// New builds an index over points. All points must share one dimension.
// The slice is not retained.
func New(points [][]float64) *Index {
	ns := make(nodes, len(points))
	for i, p := range points {
		ns[i] = node{idx: i, coord: append([]float64(nil), p...)}
	}
	if len(ns) == 0 {
		return &Index{}
	}
	return &Index{tree: kdtree.New(ns, false), n: len(ns)}
}

// Len returns the number of indexed points.
func (x *Index) Len() int { return x.n }

// Nearest returns up to k points closest to q ordered by distance, ties by
// index.
func (x *Index) Nearest(q []float64, k int) []Neighbor {
	if x.tree == nil || k <= 0 {
		return nil
	}
	if k > x.n {
		k = x.n
	}
	keep := kdtree.NewNKeeper(k)
	x.tree.NearestSet(keep, node{idx: -1, coord: q})

	out := make([]Neighbor, 0, k)
	for _, c := range keep.Heap {
		if c.Comparable == nil || math.IsInf(c.Dist, 1) {
			continue
		}
		out = append(out, Neighbor{Idx: c.Comparable.(node).idx, Dist: c.Dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist != out[j].Dist {
			return out[i].Dist < out[j].Dist
		}
		return out[i].Idx < out[j].Idx
	})
	return out
}

type node struct {
	idx   int
	coord []float64
}

func (n node) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return n.coord[d] - c.(node).coord[d]
}

func (n node) Dims() int { return len(n.coord) }

func (n node) Distance(c kdtree.Comparable) float64 {
	o := c.(node)
	var sum float64
	for i, v := range n.coord {
		d := v - o.coord[i]
		sum += d * d
	}
	return sum
}

type nodes []node

func (p nodes) Index(i int) kdtree.Comparable         { return p[i] }
func (p nodes) Len() int                              { return len(p) }
func (p nodes) Pivot(d kdtree.Dim) int                { return plane{Dim: d, nodes: p}.Pivot() }
func (p nodes) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	nodes
}

func (p plane) Less(i, j int) bool {
	return p.nodes[i].coord[p.Dim] < p.nodes[j].coord[p.Dim]
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{Dim: p.Dim, nodes: p.nodes[start:end]}
}

func (p plane) Swap(i, j int) {
	p.nodes[i], p.nodes[j] = p.nodes[j], p.nodes[i]
}
