package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fitsalign/internal/catalog"
	"fitsalign/internal/config"
	"fitsalign/internal/imgcat"
	"fitsalign/internal/logging"
	"fitsalign/internal/match"
	"fitsalign/internal/quad"
	"fitsalign/internal/star"
	"fitsalign/internal/storage"
	"fitsalign/internal/visual"
)

// Settings carries the per-job parameters shared by every worker.
type Settings struct {
	Build       star.BuildParams
	Ladder      quad.Ladder
	TargetLevel int
	Match       match.Options
	VisualDir   string // empty disables rendering
	Persist     bool
}

// SettingsFromConfig derives job settings from the user configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		Build:       cfg.StarList.BuildParams(),
		Ladder:      cfg.Quads.EffectiveLadder(),
		TargetLevel: cfg.Quads.TargetLevel,
		Match:       cfg.Match.Options(),
		Persist:     cfg.Processing.Persist,
	}
	if cfg.Processing.Visualize {
		s.VisualDir = cfg.Paths.VisualDir
	}
	return s
}

type loadFunc func(path string) ([]star.Star, error)

// router implements Processor and routes jobs to their concrete handlers.
type router struct {
	log      *slog.Logger
	store    *storage.Store
	settings Settings
	load     loadFunc
}

func newRouter(logger *slog.Logger, store *storage.Store, settings Settings) Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &router{
		log:      logger,
		store:    store,
		settings: settings,
		load:     catalog.Load,
	}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	switch job.Type {
	case JobQuads:
		return r.handleQuads(ctx, job)
	case JobMatch:
		return r.handleMatch(ctx, job)
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}

// prepare loads a catalog file, builds its star list and escalates it to
// level. Empty catalogs come back with star.ErrEmptyCatalog.
func (r *router) prepare(ctx context.Context, path string, level int) (*imgcat.Catalog, error) {
	raw, err := r.load(path)
	if err != nil {
		return nil, err
	}
	cat := imgcat.New(path, imgcat.WithLadder(r.settings.Ladder), imgcat.WithLogger(r.log))
	if err := cat.MakeStarList(raw, r.settings.Build); err != nil {
		if errors.Is(err, star.ErrEmptyCatalog) {
			logging.LogExcluded(r.log, cat.Name(), err)
		}
		return nil, err
	}
	for cat.Level() < level {
		if err := ctx.Err(); err != nil {
			return cat, err
		}
		step, ok := cat.MakeMoreQuads()
		if !ok {
			break
		}
		logging.LogEscalation(r.log, cat.Name(), step)
	}
	return cat, nil
}

// visualDir returns the job's rendering directory, falling back to the
// configured one.
func (r *router) visualDir(job Job) string {
	if dir, ok := job.Options["visual_dir"].(string); ok && dir != "" {
		return dir
	}
	return r.settings.VisualDir
}

func (r *router) finish(cat *imgcat.Catalog, visualDir string) (map[string]any, error) {
	meta := map[string]any{
		"image":     cat.Name(),
		"stars":     len(cat.Stars()),
		"quads":     cat.QuadCount(),
		"quadlevel": cat.Level(),
	}
	if visualDir != "" {
		paths, err := visual.WriteAll(cat, visualDir)
		if err != nil {
			return meta, err
		}
		meta["visuals"] = paths
	}
	if r.settings.Persist && r.store != nil {
		if err := r.store.SaveCatalog(storage.SnapshotOf(cat)); err != nil {
			return meta, fmt.Errorf("persist %s: %w", cat.Name(), err)
		}
	}
	return meta, nil
}

func (r *router) handleQuads(ctx context.Context, job Job) Result {
	level := r.settings.TargetLevel
	if v, ok := job.Options["level"].(int); ok {
		level = v
	}

	cat, err := r.prepare(ctx, job.InputPath, level)
	if err != nil {
		meta := map[string]any{"image": imgcat.Name(job.InputPath)}
		if errors.Is(err, star.ErrEmptyCatalog) {
			meta["excluded"] = true
		}
		return Result{Job: job, Error: err, Meta: meta, Catalog: cat}
	}

	meta, err := r.finish(cat, r.visualDir(job))
	return Result{Job: job, Error: err, Meta: meta, Catalog: cat}
}

func (r *router) handleMatch(ctx context.Context, job Job) Result {
	refPath, _ := job.Options["reference"].(string)
	if refPath == "" {
		return Result{Job: job, Error: errors.New("match job needs a reference catalog")}
	}

	ref, err := r.prepare(ctx, refPath, 0)
	if err != nil {
		return Result{Job: job, Error: fmt.Errorf("reference: %w", err)}
	}
	target, err := r.prepare(ctx, job.InputPath, 0)
	if err != nil {
		return Result{Job: job, Error: fmt.Errorf("target: %w", err)}
	}

	opts := r.settings.Match
	opts.Logger = r.log
	if v, ok := job.Options["tolerance"].(float64); ok && v > 0 {
		opts.Tolerance = v
	}
	if v, ok := job.Options["min_candidates"].(int); ok && v > 0 {
		opts.MinCandidates = v
	}
	res, matchErr := match.Identify(ctx, ref, target, opts)

	meta := map[string]any{
		"reference":    ref.Name(),
		"target":       target.Name(),
		"candidates":   len(res.Candidates),
		"ref_level":    res.RefLevel,
		"target_level": res.TargetLevel,
		"steps":        res.Steps,
	}
	if len(res.Candidates) > 0 {
		best := res.Candidates[0]
		meta["best_ref"] = best.Ref.Key()
		meta["best_target"] = best.Target.Key()
		meta["best_dist"] = best.Dist
	}

	for _, c := range []*imgcat.Catalog{ref, target} {
		if _, err := r.finish(c, r.visualDir(job)); err != nil {
			return Result{Job: job, Error: err, Meta: meta, Catalog: target}
		}
	}
	return Result{Job: job, Error: matchErr, Meta: meta, Catalog: target}
}
