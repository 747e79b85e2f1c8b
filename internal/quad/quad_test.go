package quad

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsalign/internal/star"
)

type similarity struct {
	scale, angle, dx, dy float64
}

func (s similarity) apply(in star.Star) star.Star {
	sin, cos := math.Sincos(s.angle)
	out := in
	out.X = s.scale*(cos*in.X-sin*in.Y) + s.dx
	out.Y = s.scale*(sin*in.X+cos*in.Y) + s.dy
	return out
}

func randomFour(rng *rand.Rand) [4]star.Star {
	var four [4]star.Star
	for i := range four {
		four[i] = star.Star{ID: 10 + i*3, X: rng.Float64() * 500, Y: rng.Float64() * 500, Flux: 1}
	}
	return four
}

func assertHashClose(t *testing.T, want, got Descriptor) {
	t.Helper()
	for i := range want {
		tol := 1e-6 * math.Max(1, math.Abs(want[i]))
		assert.InDelta(t, want[i], got[i], tol, "component %d: want %v got %v", i, want, got)
	}
}

func TestDescriptorInvariantUnderSimilarity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		four := randomFour(rng)
		base, ok := New(four)
		if !ok {
			continue
		}
		tr := similarity{
			scale: 0.05 + rng.Float64()*20,
			angle: rng.Float64() * 2 * math.Pi,
			dx:    rng.NormFloat64() * 1e4,
			dy:    rng.NormFloat64() * 1e4,
		}
		var moved [4]star.Star
		for i, s := range four {
			moved[i] = tr.apply(s)
		}
		got, ok := New(moved)
		require.True(t, ok)
		assertHashClose(t, base.Hash, got.Hash)
		for i := range base.Stars {
			assert.Equal(t, base.Stars[i].ID, got.Stars[i].ID, "frame order must follow the stars")
		}
	}
}

func TestDescriptorOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	four := randomFour(rng)
	base, ok := New(four)
	require.True(t, ok)

	perms := [][4]int{{1, 0, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {0, 3, 1, 2}}
	for _, p := range perms {
		shuffled := [4]star.Star{four[p[0]], four[p[1]], four[p[2]], four[p[3]]}
		q, ok := New(shuffled)
		require.True(t, ok)
		assert.Equal(t, base.Hash, q.Hash)
		assert.Equal(t, base.Key(), q.Key())
	}
}

func TestDescriptorCanonicalRange(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for trial := 0; trial < 100; trial++ {
		q, ok := New(randomFour(rng))
		if !ok {
			continue
		}
		assert.LessOrEqual(t, q.Hash[0]+q.Hash[2], 1+1e-9)
		assert.LessOrEqual(t, q.Hash[0], q.Hash[2]+1e-9)
	}
}

func TestDescriptorSquareTieBreak(t *testing.T) {
	square := [4]star.Star{
		{ID: 0, X: 0, Y: 0},
		{ID: 1, X: 10, Y: 0},
		{ID: 2, X: 10, Y: 10},
		{ID: 3, X: 0, Y: 10},
	}
	base, ok := New(square)
	require.True(t, ok)
	assert.Equal(t, 0, base.Stars[0].ID, "diagonal 0-2 wins the tie and the lower ID is the origin")
	assert.Equal(t, 2, base.Stars[1].ID)
	assertHashClose(t, Descriptor{0.5, -0.5, 0.5, 0.5}, base.Hash)

	for _, tr := range []similarity{
		{scale: 3, angle: 0.61, dx: 100, dy: -40},
		{scale: 0.2, angle: math.Pi / 2, dx: 0, dy: 0},
		{scale: 7, angle: 2.9, dx: -1e3, dy: 5e2},
	} {
		var moved [4]star.Star
		for i, s := range square {
			moved[i] = tr.apply(s)
		}
		q, ok := New(moved)
		require.True(t, ok)
		assertHashClose(t, base.Hash, q.Hash)
		assert.Equal(t, base.Key(), q.Key())
	}
}

func TestDescriptorBalancedQuadFollowsIDs(t *testing.T) {
	four := [4]star.Star{
		{ID: 0, X: 0, Y: 0},
		{ID: 1, X: 1, Y: 0},
		{ID: 2, X: 0.25, Y: 0.2},
		{ID: 3, X: 0.75, Y: -0.1},
	}
	q, ok := New(four)
	require.True(t, ok)
	assert.Equal(t, 0, q.Stars[0].ID)
	assertHashClose(t, Descriptor{0.25, 0.2, 0.75, -0.1}, q.Hash)

	// Same positions, baseline IDs exchanged: the origin moves with the
	// lower ID and the descriptor is the mirror image.
	four[0].ID, four[1].ID = 1, 0
	q, ok = New(four)
	require.True(t, ok)
	assert.Equal(t, 0, q.Stars[0].ID)
	assert.Equal(t, 1.0, q.Stars[0].X)
	assertHashClose(t, Descriptor{0.25, 0.1, 0.75, -0.2}, q.Hash)
}

func TestNewRejectsDegenerate(t *testing.T) {
	coincident := [4]star.Star{
		{ID: 0, X: 1, Y: 1},
		{ID: 1, X: 1, Y: 1},
		{ID: 2, X: 5, Y: 2},
		{ID: 3, X: 3, Y: 8},
	}
	_, ok := New(coincident)
	assert.False(t, ok)

	sameID := [4]star.Star{
		{ID: 4, X: 1, Y: 1},
		{ID: 4, X: 2, Y: 1},
		{ID: 2, X: 5, Y: 2},
		{ID: 3, X: 3, Y: 8},
	}
	_, ok = New(sameID)
	assert.False(t, ok)

	allSame := [4]star.Star{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}}
	_, ok = New(allSame)
	assert.False(t, ok)
}

func TestNewAcceptsCollinear(t *testing.T) {
	line := [4]star.Star{
		{ID: 0, X: 0, Y: 0},
		{ID: 1, X: 1, Y: 0},
		{ID: 2, X: 3, Y: 0},
		{ID: 3, X: 10, Y: 0},
	}
	q, ok := New(line)
	require.True(t, ok)
	assertHashClose(t, Descriptor{0.1, 0, 0.3, 0}, q.Hash)
}
