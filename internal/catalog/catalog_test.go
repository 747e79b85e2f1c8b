package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsalign/internal/star"
)

const sexCatalog = `#   1 NUMBER                 Running object number
#   2 FLUX_AUTO              Flux within a Kron-like elliptical aperture                [count]
#   3 X_IMAGE                Object position along x                                    [pixel]
#   4 Y_IMAGE                Object position along y                                    [pixel]
#   5 FLAGS                  Extraction flags
         1   15230.5    101.250    220.500   0
         2     812.0   1500.000     33.125   2
         3  990000.0     12.000   1999.000   4
`

func TestReadSExtractorHeader(t *testing.T) {
	stars, err := ReadSExtractor(strings.NewReader(sexCatalog))
	require.NoError(t, err)
	require.Len(t, stars, 3)

	assert.Equal(t, star.Star{ID: 0, X: 101.25, Y: 220.5, Flux: 15230.5, Flag: 0}, stars[0])
	assert.Equal(t, star.Star{ID: 1, X: 1500, Y: 33.125, Flux: 812, Flag: 2}, stars[1])
	assert.Equal(t, 4, stars[2].Flag)
}

func TestReadSExtractorHeaderless(t *testing.T) {
	in := "10 20 300\n\n11.5 21.5 299 1\n"
	stars, err := ReadSExtractor(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, stars, 2)
	assert.Equal(t, star.Star{ID: 0, X: 10, Y: 20, Flux: 300}, stars[0])
	assert.Equal(t, star.Star{ID: 1, X: 11.5, Y: 21.5, Flux: 299, Flag: 1}, stars[1])
}

func TestReadSExtractorErrors(t *testing.T) {
	_, err := ReadSExtractor(strings.NewReader("#  1 NUMBER\n#  2 MAG_AUTO\n1 2\n"))
	require.Error(t, err)

	_, err = ReadSExtractor(strings.NewReader("1 2\n"))
	require.ErrorContains(t, err, "line 1")

	_, err = ReadSExtractor(strings.NewReader("1 two 3\n"))
	require.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	in := "# exported\nFlux, X, Y, flags\n5.5, 1, 2, 0\n7, 3, 4, 8\n"
	stars, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, stars, 2)
	assert.Equal(t, star.Star{ID: 1, X: 3, Y: 4, Flux: 7, Flag: 8}, stars[1])

	_, err = ReadCSV(strings.NewReader("a,b,c\n1,2,3\n"))
	require.Error(t, err)

	stars, err = ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, stars)
}

func TestReadJSONL(t *testing.T) {
	in := `{"x": 1, "y": 2, "flux": 3}
{"x": 4, "y": 5, "flux": 6, "flag": 1}

`
	stars, err := ReadJSONL(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, stars, 2)
	assert.Equal(t, star.Star{ID: 1, X: 4, Y: 5, Flux: 6, Flag: 1}, stars[1])

	_, err = ReadJSONL(strings.NewReader("{not json}\n"))
	require.ErrorContains(t, err, "line 1")
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"a/b/frame.cat":      FormatSExtractor,
		"frame.SEX":          FormatSExtractor,
		"frame.csv":          FormatCSV,
		"frame.jsonl":        FormatJSONL,
		"frame.parquet":      FormatParquet,
		"/tmp/x.y/frame.txt": FormatSExtractor,
	}
	for path, want := range cases {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := DetectFormat("frame.fits")
	assert.Error(t, err)
	assert.False(t, IsCatalogFile("frame.fits"))
	assert.True(t, IsCatalogFile("frame.cat"))
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.parquet")
	in := make([]star.Star, 600)
	for i := range in {
		in[i] = star.Star{ID: i, X: float64(i) * 1.5, Y: float64(i%37) * 2, Flux: float64(1000 - i), Flag: i % 3}
	}
	require.NoError(t, WriteParquet(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.cat")
	require.NoError(t, os.WriteFile(path, []byte(sexCatalog), 0o644))

	stars, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, stars, 3)

	_, err = Load(filepath.Join(dir, "missing.cat"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "frame.fits"))
	assert.Error(t, err)
}
