package star

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridStars() []Star {
	var stars []Star
	for i := 0; i < 12; i++ {
		stars = append(stars, Star{
			ID:   i,
			X:    float64(i % 4),
			Y:    float64(i / 4),
			Flux: float64(i + 1),
		})
	}
	return stars
}

func randomCatalog(rng *rand.Rand, n int) []Star {
	stars := make([]Star, n)
	for i := range stars {
		stars[i] = Star{
			ID:   i,
			X:    rng.Float64() * 2048,
			Y:    rng.Float64() * 1024,
			Flux: math.Floor(rng.Float64() * 50),
			Flag: rng.Intn(10),
		}
	}
	return stars
}

func TestBuildGridTruncation(t *testing.T) {
	list, err := Build(gridStars(), BuildParams{MaxCount: 10, BorderFraction: 0.01})
	require.NoError(t, err)
	require.Len(t, list.Stars, 10)

	for _, s := range list.Stars {
		assert.NotContains(t, []int{0, 1}, s.ID, "lowest-flux stars must be dropped")
	}
	assert.Equal(t, 11, list.Stars[0].ID)

	assert.InDelta(t, -0.03, list.Area.XMin, 1e-12)
	assert.InDelta(t, 3.03, list.Area.XMax, 1e-12)
	assert.InDelta(t, -0.02, list.Area.YMin, 1e-12)
	assert.InDelta(t, 2.02, list.Area.YMax, 1e-12)
	assert.InDelta(t, 0.204, list.MinDist, 1e-12)
}

func TestBuildRankingAndBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		raw := randomCatalog(rng, 50+rng.Intn(400))
		maxCount := 1 + rng.Intn(250)
		list, err := Build(raw, BuildParams{MaxCount: maxCount, BorderFraction: 0.01})
		require.NoError(t, err)

		assert.LessOrEqual(t, len(list.Stars), maxCount)
		for i := 1; i < len(list.Stars); i++ {
			prev, cur := list.Stars[i-1], list.Stars[i]
			require.GreaterOrEqual(t, prev.Flux, cur.Flux)
			if prev.Flux == cur.Flux {
				require.Less(t, prev.ID, cur.ID, "ties keep catalog order")
			}
		}
		for _, s := range list.Stars {
			assert.True(t, list.Area.Contains(s), "star %v outside %+v", s, list.Area)
		}
		assert.Greater(t, list.Area.Width(), 0.0)
		assert.Greater(t, list.Area.Height(), 0.0)
	}
}

func TestBuildSaturationFilter(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	raw := randomCatalog(rng, 300)

	strict, err := Build(raw, BuildParams{SkipSaturated: true, MaxCount: 1000})
	require.NoError(t, err)
	for _, s := range strict.Stars {
		assert.LessOrEqual(t, s.Flag, 3)
	}

	loose, err := Build(raw, BuildParams{SkipSaturated: false, MaxCount: 1000})
	require.NoError(t, err)
	sawMid := false
	for _, s := range loose.Stars {
		assert.LessOrEqual(t, s.Flag, 7)
		if s.Flag > 3 {
			sawMid = true
		}
	}
	assert.True(t, sawMid, "flags 4..7 are kept without skipSaturated")
}

func TestBuildEmptyCatalog(t *testing.T) {
	_, err := Build(nil, DefaultBuildParams())
	require.ErrorIs(t, err, ErrEmptyCatalog)

	saturated := []Star{{ID: 0, X: 1, Y: 1, Flux: 10, Flag: 5}}
	list, err := Build(saturated, BuildParams{SkipSaturated: true})
	require.ErrorIs(t, err, ErrEmptyCatalog)
	assert.Nil(t, list)

	unusable := []Star{
		{ID: 0, X: math.NaN(), Y: 1, Flux: 3},
		{ID: 1, X: 1, Y: 2, Flux: -1},
	}
	_, err = Build(unusable, DefaultBuildParams())
	require.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestBuildDegenerateArea(t *testing.T) {
	single, err := Build([]Star{{X: 5, Y: 7, Flux: 1}}, DefaultBuildParams())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, single.Area.Width(), 1e-12)
	assert.InDelta(t, 1.0, single.Area.Height(), 1e-12)
	assert.True(t, single.Area.Contains(single.Stars[0]))
	assert.Greater(t, single.MinDist, 0.0)

	collinear, err := Build([]Star{
		{ID: 0, X: 0, Y: 3, Flux: 1},
		{ID: 1, X: 10, Y: 3, Flux: 2},
		{ID: 2, X: 20, Y: 3, Flux: 3},
	}, DefaultBuildParams())
	require.NoError(t, err)
	assert.InDelta(t, 20.4, collinear.Area.Width(), 1e-9)
	assert.InDelta(t, 1.0, collinear.Area.Height(), 1e-12)
	assert.InDelta(t, 0.1, collinear.MinDist, 1e-12)
}

func TestMinDistCapped(t *testing.T) {
	a := Area{XMin: 0, XMax: 4096, YMin: 0, YMax: 4096}
	assert.Equal(t, 30.0, MinDist(a))
}
