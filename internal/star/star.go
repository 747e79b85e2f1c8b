package star

import (
	"fmt"
	"math"
)

// Star is one detected point source. ID is the detection's index in the
// raw catalog and identifies the star across quads.
type Star struct {
	ID   int
	X, Y float64
	Flux float64
	Flag int
}

// Distance returns the Euclidean distance between two stars.
func (s Star) Distance(o Star) float64 {
	return math.Hypot(s.X-o.X, s.Y-o.Y)
}

func (s Star) String() string {
	return fmt.Sprintf("#%d (%.2f, %.2f) flux=%.1f flag=%d", s.ID, s.X, s.Y, s.Flux, s.Flag)
}

// usable reports whether the detection carries finite coordinates and a
// non-negative flux.
func (s Star) usable() bool {
	if math.IsNaN(s.X) || math.IsInf(s.X, 0) || math.IsNaN(s.Y) || math.IsInf(s.Y, 0) {
		return false
	}
	return !math.IsNaN(s.Flux) && s.Flux >= 0
}

// Area is an axis-aligned bounding box in pixel coordinates.
type Area struct {
	XMin, XMax float64
	YMin, YMax float64
}

func (a Area) Width() float64  { return a.XMax - a.XMin }
func (a Area) Height() float64 { return a.YMax - a.YMin }

// Contains reports whether s lies inside the box, edges included.
func (a Area) Contains(s Star) bool {
	return s.X >= a.XMin && s.X <= a.XMax && s.Y >= a.YMin && s.Y <= a.YMax
}

// defaultSpan is the width given to an axis along which all stars share the
// same coordinate.
const defaultSpan = 1.0

// ComputeArea returns the bounding box of stars expanded on each axis by
// border times the axis span. Axes with zero span are widened to
// defaultSpan so the area is always positive. An empty slice yields a
// defaultSpan square centred on the origin.
func ComputeArea(stars []Star, border float64) Area {
	if len(stars) == 0 {
		h := defaultSpan / 2
		return Area{XMin: -h, XMax: h, YMin: -h, YMax: h}
	}
	a := Area{XMin: stars[0].X, XMax: stars[0].X, YMin: stars[0].Y, YMax: stars[0].Y}
	for _, s := range stars[1:] {
		a.XMin = math.Min(a.XMin, s.X)
		a.XMax = math.Max(a.XMax, s.X)
		a.YMin = math.Min(a.YMin, s.Y)
		a.YMax = math.Max(a.YMax, s.Y)
	}
	a.XMin, a.XMax = expand(a.XMin, a.XMax, border)
	a.YMin, a.YMax = expand(a.YMin, a.YMax, border)
	return a
}

func expand(lo, hi, border float64) (float64, float64) {
	span := hi - lo
	if span == 0 {
		return lo - defaultSpan/2, hi + defaultSpan/2
	}
	pad := border * span
	if pad < 0 {
		pad = 0
	}
	return lo - pad, hi + pad
}
