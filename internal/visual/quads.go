package visual

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"fitsalign/internal/imgcat"
	"fitsalign/internal/quad"
	"fitsalign/internal/star"
)

// RenderQuads plots the stars of c with glyphs sized by log flux, overlays
// every quad as a translucent polygon and saves the figure to path.
func RenderQuads(c *imgcat.Catalog, path string) error {
	if !c.HasStars() {
		return fmt.Errorf("%s: no star list to render", c.Name())
	}
	p, err := quadPlot(c.Stars(), c.Quads(), c.Area(), c.String())
	if err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}

	area := c.Area()
	width := 8 * vg.Inch
	height := vg.Length(float64(width) * area.Height() / area.Width())
	height = vg.Length(math.Max(float64(3*vg.Inch), math.Min(float64(height), float64(16*vg.Inch))))
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save quad plot: %w", err)
	}
	return nil
}

func quadPlot(stars []star.Star, quads []quad.Quad, area star.Area, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	for i, q := range quads {
		poly, err := plotter.NewPolygon(ccwCorners(q))
		if err != nil {
			return nil, fmt.Errorf("quad %d: %w", i, err)
		}
		poly.Color = color.RGBA{R: 30, G: 90, B: 200, A: 10}
		poly.LineStyle.Width = 0
		p.Add(poly)
	}

	pts := make(plotter.XYs, len(stars))
	for i, s := range stars {
		pts[i] = plotter.XY{X: s.X, Y: s.Y}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	sizes := glyphSizes(stars)
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  color.RGBA{R: 200, G: 40, B: 40, A: 255},
			Radius: vg.Points(sizes[i]),
			Shape:  draw.CircleGlyph{},
		}
	}
	p.Add(sc)

	p.X.Min, p.X.Max = area.XMin, area.XMax
	p.Y.Min, p.Y.Max = area.YMin, area.YMax
	return p, nil
}

// glyphSizes maps log flux linearly onto [1, 9]. Non-positive fluxes get
// the smallest glyph.
func glyphSizes(stars []star.Star) []float64 {
	logs := make([]float64, len(stars))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range stars {
		if s.Flux <= 0 {
			logs[i] = math.NaN()
			continue
		}
		logs[i] = math.Log10(s.Flux)
		lo = math.Min(lo, logs[i])
		hi = math.Max(hi, logs[i])
	}
	out := make([]float64, len(stars))
	for i, l := range logs {
		switch {
		case math.IsNaN(l):
			out[i] = 1
		case hi > lo:
			out[i] = 1 + 8*(l-lo)/(hi-lo)
		default:
			out[i] = 5
		}
	}
	return out
}

// ccwCorners returns the quad members ordered counter-clockwise around
// their centroid, so the polygon does not self-intersect.
func ccwCorners(q quad.Quad) plotter.XYs {
	var cx, cy float64
	for _, s := range q.Stars {
		cx += s.X / 4
		cy += s.Y / 4
	}
	pts := make(plotter.XYs, 4)
	for i, s := range q.Stars {
		pts[i] = plotter.XY{X: s.X, Y: s.Y}
	}
	sort.Slice(pts, func(i, j int) bool {
		return math.Atan2(pts[i].Y-cy, pts[i].X-cx) < math.Atan2(pts[j].Y-cy, pts[j].X-cx)
	})
	return pts
}
