package visual

import (
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsalign/internal/imgcat"
	"fitsalign/internal/quad"
	"fitsalign/internal/star"
)

func testCatalog(t *testing.T) *imgcat.Catalog {
	t.Helper()
	rng := rand.New(rand.NewSource(9))
	raw := make([]star.Star, 60)
	for i := range raw {
		raw[i] = star.Star{ID: i, X: rng.Float64() * 1200, Y: rng.Float64() * 900, Flux: 1 + rng.Float64()*5000}
	}
	c := imgcat.New("/tmp/frame_007.cat")
	require.NoError(t, c.MakeStarList(raw, star.DefaultBuildParams()))
	c.MakeMoreQuads()
	return c
}

func TestWriteAll(t *testing.T) {
	c := testCatalog(t)
	dir := filepath.Join(t.TempDir(), "visu")

	paths, err := WriteAll(c, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "frame_007_stars.png"),
		filepath.Join(dir, "frame_007_quads.png"),
	}, paths)

	for _, p := range paths {
		f, err := os.Open(p)
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err, p)
		assert.Positive(t, img.Bounds().Dx())
		assert.Positive(t, img.Bounds().Dy())
	}
}

func TestStarImageSize(t *testing.T) {
	area := star.Area{XMin: 0, XMax: 400, YMin: 0, YMax: 200}
	img := starImage([]star.Star{{X: 200, Y: 100, Flux: 1}}, area, "t")
	assert.Equal(t, canvasWidth, img.Bounds().Dx())
	assert.Equal(t, canvasWidth/2+titleHeight, img.Bounds().Dy())
}

func TestStarImageNarrowField(t *testing.T) {
	var stars []star.Star
	for i := range 5 {
		stars = append(stars, star.Star{ID: i, X: 100 + 0.1*float64(i), Y: 1000 * float64(i), Flux: 1})
	}
	area := star.ComputeArea(stars, 0.01)
	img := starImage(stars, area, "narrow")
	assert.LessOrEqual(t, img.Bounds().Dx(), canvasWidth)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), minCanvasSide)
	assert.Equal(t, maxCanvasHeight+titleHeight, img.Bounds().Dy())
}

func TestRenderWithoutStars(t *testing.T) {
	c := imgcat.New("empty.cat")
	dir := t.TempDir()
	assert.Error(t, RenderStars(c, StarsPath(dir, c.Name())))
	assert.Error(t, RenderQuads(c, QuadsPath(dir, c.Name())))
}

func TestGlyphSizes(t *testing.T) {
	sizes := glyphSizes([]star.Star{{Flux: 1000}, {Flux: 10}, {Flux: 100}, {Flux: 0}})
	assert.InDelta(t, 9, sizes[0], 1e-12)
	assert.InDelta(t, 1, sizes[1], 1e-12)
	assert.InDelta(t, 5, sizes[2], 1e-12)
	assert.InDelta(t, 1, sizes[3], 1e-12)

	same := glyphSizes([]star.Star{{Flux: 3}, {Flux: 3}})
	assert.Equal(t, []float64{5, 5}, same)
}

func TestCCWCorners(t *testing.T) {
	q, ok := quad.New([4]star.Star{
		{ID: 0, X: 0, Y: 0},
		{ID: 1, X: 10, Y: 10},
		{ID: 2, X: 10, Y: 0},
		{ID: 3, X: 0, Y: 10},
	})
	require.True(t, ok)

	pts := ccwCorners(q)
	var area float64
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	assert.InDelta(t, 200, area, 1e-9, "shoelace sum of a CCW square is positive")
	assert.False(t, math.IsNaN(area))
}
