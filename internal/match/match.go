// Package match proposes quad correspondences between two image catalogs
// and drives their escalation until enough candidates turn up.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"fitsalign/internal/imgcat"
	"fitsalign/internal/kdindex"
	"fitsalign/internal/quad"
)

// ErrNoMatch is returned by Identify when both catalogs are exhausted
// without producing enough candidates.
var ErrNoMatch = errors.New("no quad match")

const (
	DefaultTolerance     = 0.002
	DefaultMinCandidates = 1
)

// Candidate pairs a reference quad with a target quad of similar shape.
type Candidate struct {
	Ref    quad.Quad
	Target quad.Quad
	Dist   float64
}

// Options controls Identify.
type Options struct {
	Tolerance     float64      `json:"tolerance" yaml:"tolerance"`
	MinCandidates int          `json:"min_candidates" yaml:"min_candidates"`
	Logger        *slog.Logger `json:"-" yaml:"-"`
}

// DefaultOptions returns the default matching options.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance, MinCandidates: DefaultMinCandidates}
}

func (o Options) normalized() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MinCandidates <= 0 {
		o.MinCandidates = DefaultMinCandidates
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result is the outcome of Identify.
type Result struct {
	Candidates  []Candidate
	RefLevel    int
	TargetLevel int
	Steps       int
}

// Propose returns, for every target quad, the reference quad with the
// nearest descriptor when it lies within tol. Candidates are ordered by
// descriptor distance.
func Propose(ref, target []quad.Quad, tol float64) []Candidate {
	if len(ref) == 0 || len(target) == 0 {
		return nil
	}
	points := make([][]float64, len(ref))
	for i, q := range ref {
		points[i] = q.Hash[:]
	}
	idx := kdindex.New(points)

	tol2 := tol * tol
	var out []Candidate
	for _, t := range target {
		nn := idx.Nearest(t.Hash[:], 1)
		if len(nn) == 0 || nn[0].Dist > tol2 {
			continue
		}
		out = append(out, Candidate{Ref: ref[nn[0].Idx], Target: t, Dist: math.Sqrt(nn[0].Dist)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Dist < out[j].Dist })
	return out
}

// Identify looks for quad candidates between ref and target. Whenever too
// few turn up, the catalog at the lower quadlevel is asked for more quads,
// the target first on ties. The context is checked between steps.
func Identify(ctx context.Context, ref, target *imgcat.Catalog, opts Options) (Result, error) {
	opts = opts.normalized()
	if !ref.HasStars() {
		return Result{}, fmt.Errorf("reference %s has no star list", ref.Name())
	}
	if !target.HasStars() {
		return Result{}, fmt.Errorf("target %s has no star list", target.Name())
	}

	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Candidates = Propose(ref.Quads(), target.Quads(), opts.Tolerance)
		res.RefLevel, res.TargetLevel = ref.Level(), target.Level()
		if len(res.Candidates) >= opts.MinCandidates {
			opts.Logger.Debug("quad candidates found", "ref", ref.Name(), "target", target.Name(),
				"candidates", len(res.Candidates), "steps", res.Steps)
			return res, nil
		}

		first, second := target, ref
		if ref.Level() < target.Level() {
			first, second = ref, target
		}
		step, ok := first.MakeMoreQuads()
		grown := first
		if !ok {
			step, ok = second.MakeMoreQuads()
			grown = second
		}
		if !ok {
			return res, fmt.Errorf("%s vs %s: %w", ref.Name(), target.Name(), ErrNoMatch)
		}
		res.Steps++
		opts.Logger.Debug("escalated", "image", grown.Name(), "quadlevel", step.Level, "added", step.Added, "total", step.Total)
	}
}
