// Package imgcat holds the per-image aggregate: the star list of one image,
// the quads accumulated for it and the escalation level reached so far.
package imgcat

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"fitsalign/internal/quad"
	"fitsalign/internal/star"
)

// Step reports one escalation step.
type Step struct {
	Level      int
	Params     quad.Params
	Anchors    int
	Generated  int
	Degenerate int
	Added      int
	Total      int
}

// Catalog represents an individual image: its star list, quads and
// escalation level. All methods are safe for concurrent use; escalation
// steps on one catalog are serialized.
type Catalog struct {
	name   string
	source string
	ladder quad.Ladder
	log    *slog.Logger

	mu       sync.Mutex
	starlist *star.List
	quads    []quad.Quad
	level    int
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLadder replaces the default escalation ladder.
func WithLadder(l quad.Ladder) Option {
	return func(c *Catalog) {
		if len(l) > 0 {
			c.ladder = l.Clone()
		}
	}
}

// WithLogger sets the logger used for escalation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates an empty catalog for the image identified by source, usually
// a file path. The name is the file name without directory and extension.
func New(source string, opts ...Option) *Catalog {
	c := &Catalog{
		name:   Name(source),
		source: source,
		ladder: quad.DefaultLadder.Clone(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name derives an image name from its source identifier.
func Name(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MakeStarList builds the working star list from raw detections. It fails
// with star.ErrEmptyCatalog when nothing usable remains, leaving the
// catalog unchanged. A successful rebuild drops the quads and restarts
// escalation at level 0, since quads always come from the current list.
func (c *Catalog) MakeStarList(raw []star.Star, p star.BuildParams) error {
	list, err := star.Build(raw, p)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.quads) > 0 || c.level > 0 {
		c.log.Debug("star list rebuilt, quads dropped", "image", c.name, "quads", len(c.quads), "quadlevel", c.level)
	}
	c.starlist = list
	c.quads = nil
	c.level = 0
	c.log.Debug("star list built", "image", c.name, "stars", list.Len(), "mindist", list.MinDist)
	return nil
}

// MakeMoreQuads runs the generator of the current level, merges the new
// quads into the quad list and moves to the next level. It returns false,
// changing nothing, once every level has been used or when no star list
// has been built.
func (c *Catalog) MakeMoreQuads() (Step, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	params, ok := c.ladder.At(c.level)
	if !ok || c.starlist == nil {
		return Step{Level: c.level, Total: len(c.quads)}, false
	}

	c.log.Debug("making more quads", "image", c.name, "quadlevel", c.level)
	batch, stats := quad.Generate(c.starlist, c.starlist.MinDist, params)

	var added int
	c.quads, added = quad.Merge(c.quads, batch)

	step := Step{
		Level:      c.level,
		Params:     params,
		Anchors:    stats.Anchors,
		Generated:  len(batch),
		Degenerate: stats.Degenerate,
		Added:      added,
		Total:      len(c.quads),
	}
	c.level++
	return step, true
}

// EscalateTo calls MakeMoreQuads until the catalog reaches level or no
// level is left, and returns the steps taken.
func (c *Catalog) EscalateTo(level int) []Step {
	var steps []Step
	for c.Level() < level {
		step, ok := c.MakeMoreQuads()
		if !ok {
			break
		}
		steps = append(steps, step)
	}
	return steps
}

// Name returns the image name.
func (c *Catalog) Name() string { return c.name }

// Source returns the identifier the catalog was created from.
func (c *Catalog) Source() string { return c.source }

// Levels returns the number of escalation levels available.
func (c *Catalog) Levels() int { return c.ladder.Levels() }

// Level returns the next level to be generated.
func (c *Catalog) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Exhausted reports whether every escalation level has been used.
func (c *Catalog) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level >= c.ladder.Levels()
}

// HasStars reports whether a star list has been built.
func (c *Catalog) HasStars() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starlist != nil
}

// Stars returns a copy of the ranked star list.
func (c *Catalog) Stars() []star.Star {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.starlist == nil {
		return nil
	}
	return append([]star.Star(nil), c.starlist.Stars...)
}

// Quads returns a copy of the accumulated quad list.
func (c *Catalog) Quads() []quad.Quad {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]quad.Quad(nil), c.quads...)
}

// QuadCount returns the number of accumulated quads.
func (c *Catalog) QuadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quads)
}

// Area returns the bounding box of the star list.
func (c *Catalog) Area() star.Area {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.starlist == nil {
		return star.Area{}
	}
	return c.starlist.Area
}

// MinDist returns the minimal star separation used for quads.
func (c *Catalog) MinDist() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.starlist == nil {
		return 0
	}
	return c.starlist.MinDist
}

func (c *Catalog) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var w, h float64
	if c.starlist != nil {
		w, h = c.starlist.Area.Width(), c.starlist.Area.Height()
	}
	return fmt.Sprintf("%20s: approx %4d x %4d, %4d stars, %4d quads, quadlevel %d",
		filepath.Base(c.source), int(w), int(h), c.starlist.Len(), len(c.quads), c.level)
}
