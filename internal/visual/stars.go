// Package visual renders diagnostic images of an image catalog: its ranked
// stars and the quads built on them. Nothing here feeds back into the
// catalog.
package visual

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"fitsalign/internal/imgcat"
	"fitsalign/internal/star"
)

const (
	canvasWidth     = 800
	maxCanvasHeight = 1600
	minCanvasSide   = 100
	titleHeight     = 24
	starRadius  = 8
)

// StarsPath returns the file the star overlay of name is written to.
func StarsPath(dir, name string) string {
	return filepath.Join(dir, name+"_stars.png")
}

// QuadsPath returns the file the quad plot of name is written to.
func QuadsPath(dir, name string) string {
	return filepath.Join(dir, name+"_quads.png")
}

// WriteAll renders both diagnostics of c into dir, creating it if needed,
// and returns the written paths.
func WriteAll(c *imgcat.Catalog, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create visual dir: %w", err)
	}
	stars, quads := StarsPath(dir, c.Name()), QuadsPath(dir, c.Name())
	if err := RenderStars(c, stars); err != nil {
		return nil, err
	}
	if err := RenderQuads(c, quads); err != nil {
		return nil, err
	}
	return []string{stars, quads}, nil
}

// RenderStars draws the ranked star list as circles over the catalog area
// and writes a PNG to path. Brighter stars are drawn in warmer colours.
func RenderStars(c *imgcat.Catalog, path string) error {
	if !c.HasStars() {
		return fmt.Errorf("%s: no star list to render", c.Name())
	}
	img := starImage(c.Stars(), c.Area(), c.String())

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create star overlay: %w", err)
	}
	defer f.Close()
	return png.Encode(f, img)
}

func starImage(stars []star.Star, area star.Area, title string) *image.RGBA {
	// Fit the area into canvasWidth x maxCanvasHeight keeping its aspect.
	scale := math.Min(float64(canvasWidth)/area.Width(), float64(maxCanvasHeight)/area.Height())
	w := max(int(math.Ceil(area.Width()*scale)), minCanvasSide)
	h := max(int(math.Ceil(area.Height()*scale)), minCanvasSide)
	w, h = min(w, canvasWidth), min(h, maxCanvasHeight)
	img := image.NewRGBA(image.Rect(0, 0, w, h+titleHeight))
	for y := 0; y < h+titleHeight; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	// Y grows upwards in catalog coordinates.
	toPixel := func(s star.Star) (int, int) {
		px := (s.X - area.XMin) * scale
		py := float64(h) - (s.Y-area.YMin)*scale
		return int(math.Round(px)), titleHeight + int(math.Round(py))
	}

	for i := len(stars) - 1; i >= 0; i-- {
		x, y := toPixel(stars[i])
		drawCircle(img, x, y, starRadius, rankColor(i, len(stars)))
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{220, 220, 220, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(6, 16),
	}
	d.DrawString(title)
	return img
}

// rankColor fades from yellow for the brightest star to blue for the
// faintest.
func rankColor(rank, n int) color.RGBA {
	t := 0.0
	if n > 1 {
		t = float64(rank) / float64(n-1)
	}
	return color.RGBA{
		R: uint8(255 - t*175),
		G: uint8(220 - t*100),
		B: uint8(40 + t*215),
		A: 255,
	}
}

func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x, y, e := radius, 0, 0
	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		e += 1 + 2*y
		if 2*(e-x)+1 > 0 {
			x--
			e += 1 - 2*x
		}
	}
}
