package quad

import (
	"fitsalign/internal/kdindex"
	"fitsalign/internal/star"
)

// Params selects one quad generation strategy. The generator works on the
// sublist of stars at flux ranks S, S+F, S+2F, ... and combines every
// anchor of that sublist with three of its N nearest sublist neighbours.
// F = 1, S = 0 is the dense strategy on the whole list; larger F and S
// widen the search to sparser, more distant stars.
type Params struct {
	N int `json:"n" yaml:"n"`
	F int `json:"f" yaml:"f"`
	S int `json:"s" yaml:"s"`
}

// Dense reports whether p covers every star of the list.
func (p Params) Dense() bool { return p.F <= 1 && p.S <= 0 }

// Stats counts what a generation pass looked at.
type Stats struct {
	Anchors    int
	Candidates int
	Degenerate int
}

// Sublist returns the stars selected by the skip factor and offset of p.
func (p Params) Sublist(stars []star.Star) []star.Star {
	f := p.F
	if f < 1 {
		f = 1
	}
	s := p.S
	if s < 0 {
		s = 0
	}
	var out []star.Star
	for i := s; i < len(stars); i += f {
		out = append(out, stars[i])
	}
	return out
}

// Generate builds the quads of one strategy. Neighbours closer than d to
// their anchor are ignored. Degenerate groups are dropped and counted. The
// result may contain the same member set several times; see Dedupe.
func Generate(list *star.List, d float64, p Params) ([]Quad, Stats) {
	var stats Stats
	if list == nil || p.N < 3 {
		return nil, stats
	}
	sub := p.Sublist(list.Stars)
	if len(sub) < 4 {
		return nil, stats
	}

	points := make([][]float64, len(sub))
	for i, s := range sub {
		points[i] = []float64{s.X, s.Y}
	}
	index := kdindex.New(points)

	var quads []Quad
	for ai, anchor := range sub {
		neighbors := nearestBeyond(index, sub, ai, p.N, d)
		if len(neighbors) < 3 {
			continue
		}
		stats.Anchors++
		forEachTriple(len(neighbors), func(i, j, k int) {
			stats.Candidates++
			q, ok := New([4]star.Star{anchor, sub[neighbors[i]], sub[neighbors[j]], sub[neighbors[k]]})
			if !ok {
				stats.Degenerate++
				return
			}
			quads = append(quads, q)
		})
	}
	return quads, stats
}

// nearestBeyond returns the sublist indices of up to n stars nearest to
// sub[ai] that lie at least d away from it, equal distances ordered by flux
// rank. The query widens until the n-th neighbour is unambiguous or the
// sublist is exhausted.
func nearestBeyond(index *kdindex.Index, sub []star.Star, ai, n int, d float64) []int {
	anchor := sub[ai]
	q := []float64{anchor.X, anchor.Y}
	d2 := d * d

	for k := n + 2; ; k *= 2 {
		var qualified []kdindex.Neighbor
		for _, nb := range index.Nearest(q, k) {
			if nb.Idx == ai || nb.Dist < d2 {
				continue
			}
			qualified = append(qualified, nb)
		}
		done := k >= index.Len()
		if !done && len(qualified) > n && qualified[n].Dist > qualified[n-1].Dist {
			done = true
		}
		if done {
			if len(qualified) > n {
				qualified = qualified[:n]
			}
			out := make([]int, len(qualified))
			for i, nb := range qualified {
				out[i] = nb.Idx
			}
			return out
		}
	}
}

func forEachTriple(n int, fn func(i, j, k int)) {
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				fn(i, j, k)
			}
		}
	}
}
