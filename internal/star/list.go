package star

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptyCatalog is returned by Build when no usable star survives
// filtering. The image cannot produce quads and should be excluded.
var ErrEmptyCatalog = errors.New("empty catalog: no usable stars")

const (
	// DefaultMaxCount bounds the working star list.
	DefaultMaxCount = 200
	// DefaultBorder is the fractional margin added around the star area.
	DefaultBorder = 0.01

	maxFlagSaturated = 3
	maxFlagDefault   = 7

	maxMinDist = 30.0
)

// BuildParams controls how a raw catalog becomes a working star list.
type BuildParams struct {
	SkipSaturated  bool
	MaxCount       int
	BorderFraction float64
}

// DefaultBuildParams returns the parameters used when nothing is configured.
func DefaultBuildParams() BuildParams {
	return BuildParams{MaxCount: DefaultMaxCount, BorderFraction: DefaultBorder}
}

// MaxFlag returns the highest quality flag a star may carry to be kept.
func (p BuildParams) MaxFlag() int {
	if p.SkipSaturated {
		return maxFlagSaturated
	}
	return maxFlagDefault
}

// List is the ranked, truncated star list of one image together with its
// derived scale hints. It is not modified after Build returns.
type List struct {
	Stars   []Star
	Area    Area
	MinDist float64
}

// Len returns the number of stars in the list.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Stars)
}

// Build filters, ranks and truncates raw detections. Stars are ordered by
// descending flux; equal fluxes keep catalog order.
func Build(raw []Star, p BuildParams) (*List, error) {
	maxCount := p.MaxCount
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	maxFlag := p.MaxFlag()

	kept := make([]Star, 0, len(raw))
	for _, s := range raw {
		if s.Flag > maxFlag || !s.usable() {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return nil, ErrEmptyCatalog
	}

	SortByFlux(kept)
	if len(kept) > maxCount {
		kept = kept[:maxCount:maxCount]
	}

	area := ComputeArea(kept, p.BorderFraction)
	return &List{
		Stars:   kept,
		Area:    area,
		MinDist: MinDist(area),
	}, nil
}

// SortByFlux orders stars by descending flux, keeping the relative order of
// equal fluxes.
func SortByFlux(stars []Star) {
	sort.SliceStable(stars, func(i, j int) bool {
		return stars[i].Flux > stars[j].Flux
	})
}

// MinDist is the smallest separation worth considering between stars of a
// quad: a tenth of the shorter side of the area, capped at 30 pixels.
func MinDist(a Area) float64 {
	return math.Min(math.Min(a.Width(), a.Height())/10.0, maxMinDist)
}
