package quad

import (
	"fmt"
	"math"
	"sort"

	"fitsalign/internal/star"
)

const (
	// relTol is the relative tolerance used for separation ties and for
	// detecting coincident members.
	relTol = 1e-9
	// minBaseline is the smallest usable absolute separation between the
	// two frame-defining stars.
	minBaseline = 1e-12
)

// Descriptor is the invariant signature of a quad: the coordinates of the
// two inner stars C and D in the frame where A sits at (0,0) and B at (1,0).
type Descriptor [4]float64

// Distance returns the Euclidean distance between two descriptors.
func (d Descriptor) Distance(o Descriptor) float64 {
	var sum float64
	for i := range d {
		diff := d[i] - o[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Key identifies a quad by its member star IDs in ascending order.
type Key [4]int

// Quad is a group of four distinct stars and its descriptor. Stars holds
// the members in frame order A, B, C, D.
type Quad struct {
	Stars [4]star.Star
	Hash  Descriptor
}

// Key returns the order-independent identity of the quad.
func (q Quad) Key() Key {
	k := Key{q.Stars[0].ID, q.Stars[1].ID, q.Stars[2].ID, q.Stars[3].ID}
	sort.Ints(k[:])
	return k
}

func (q Quad) String() string {
	return fmt.Sprintf("quad%v hash=(%.4f, %.4f, %.4f, %.4f)", q.Key(), q.Hash[0], q.Hash[1], q.Hash[2], q.Hash[3])
}

var pairs = [6][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}

// New computes the quad for four stars. It returns false when the group is
// degenerate: repeated IDs, coincident members, or a baseline too short to
// define a frame.
func New(four [4]star.Star) (Quad, bool) {
	for _, p := range pairs {
		if four[p[0]].ID == four[p[1]].ID {
			return Quad{}, false
		}
	}

	var dist [6]float64
	maxIdx := 0
	for i, p := range pairs {
		dist[i] = four[p[0]].Distance(four[p[1]])
		if dist[i] > dist[maxIdx] {
			maxIdx = i
		}
	}
	maxDist := dist[maxIdx]
	if !(maxDist > minBaseline) || math.IsInf(maxDist, 0) {
		return Quad{}, false
	}
	for _, d := range dist {
		if d <= relTol*maxDist {
			return Quad{}, false
		}
	}

	// Among pairs tied for the largest separation, the one with the
	// smallest (lower ID, higher ID) wins.
	best := -1
	var bestKey [2]int
	for i, p := range pairs {
		if maxDist-dist[i] > relTol*maxDist {
			continue
		}
		k := orderedIDs(four[p[0]], four[p[1]])
		if best < 0 || k[0] < bestKey[0] || (k[0] == bestKey[0] && k[1] < bestKey[1]) {
			best, bestKey = i, k
		}
	}

	ai, bi := pairs[best][0], pairs[best][1]
	var rest []int
	for i := 0; i < 4; i++ {
		if i != ai && i != bi {
			rest = append(rest, i)
		}
	}
	a, b := four[ai], four[bi]
	if a.ID > b.ID {
		a, b = b, a
	}
	c, d := four[rest[0]], four[rest[1]]

	xc, yc := frame(a, b, c)
	xd, yd := frame(a, b, d)

	// Pick the origin so that the inner stars lean towards it. When
	// xC+xD is 1 within relTol the origin stays the lower ID, so such a
	// quad hashes to (xC, yC, xD, yD) or its mirror (1-x, -y) depending on
	// which end of the baseline got the lower row index. The same sky
	// pattern read from two catalogs can then produce descriptors that do
	// not match.
	sum := xc + xd
	if sum-1 > relTol {
		a, b = b, a
		xc, yc = 1-xc, -yc
		xd, yd = 1-xd, -yd
	}

	if swapInner(xc, yc, c.ID, xd, yd, d.ID) {
		c, d = d, c
		xc, yc, xd, yd = xd, yd, xc, yc
	}

	return Quad{
		Stars: [4]star.Star{a, b, c, d},
		Hash:  Descriptor{xc, yc, xd, yd},
	}, true
}

// frame expresses p in the frame where a is the origin and b is (1, 0).
func frame(a, b, p star.Star) (float64, float64) {
	abx, aby := b.X-a.X, b.Y-a.Y
	vx, vy := p.X-a.X, p.Y-a.Y
	norm := abx*abx + aby*aby
	x := (vx*abx + vy*aby) / norm
	y := (abx*vy - aby*vx) / norm
	return x, y
}

// swapInner reports whether D should come before C: smaller x first, then
// smaller y, then lower ID.
func swapInner(xc, yc float64, idc int, xd, yd float64, idd int) bool {
	if math.Abs(xc-xd) > relTol {
		return xc > xd
	}
	if math.Abs(yc-yd) > relTol {
		return yc > yd
	}
	return idc > idd
}

func orderedIDs(a, b star.Star) [2]int {
	if a.ID < b.ID {
		return [2]int{a.ID, b.ID}
	}
	return [2]int{b.ID, a.ID}
}
