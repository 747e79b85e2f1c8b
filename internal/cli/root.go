package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"fitsalign/internal/config"
	"fitsalign/internal/pipeline"
	"fitsalign/internal/storage"
)

// Version is stamped at build time with -ldflags "-X fitsalign/internal/cli.Version=...".
var Version = "dev"

// pipelineClient is the part of the pipeline the commands use.
type pipelineClient interface {
	RunBatch(ctx context.Context, jobs []pipeline.Job) ([]pipeline.Result, error)
	SubmitWait(ctx context.Context, job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

// Root holds the shared state of every command.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	out      io.Writer
}

// NewRoot constructs the CLI root.
func NewRoot(pl pipelineClient, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	if logger == nil {
		logger = slog.Default()
	}
	return &Root{
		pipeline: pl,
		cfg:      cfg,
		log:      logger,
		store:    store,
		out:      os.Stdout,
	}
}

func (r *Root) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// runJobs runs jobs to completion and prints one line per result. It fails
// only when no job succeeded.
func (r *Root) runJobs(ctx context.Context, jobs []pipeline.Job) ([]pipeline.Result, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no catalogs to process")
	}
	for _, j := range jobs {
		r.log.Debug("job queued", "type", j.Type, "id", j.ID, "input", j.InputPath)
	}
	results, err := r.pipeline.RunBatch(ctx, jobs)
	if err != nil {
		return results, err
	}

	ok := 0
	for _, res := range results {
		switch {
		case res.Error == nil:
			ok++
			r.printResult(res)
		case res.Meta["excluded"] == true:
			r.printf("%20s: excluded (%v)\n", res.Meta["image"], res.Error)
		default:
			r.printf("%20s: failed: %v\n", res.Job.InputPath, res.Error)
		}
	}
	if ok == 0 {
		return results, fmt.Errorf("all %d jobs failed", len(results))
	}
	return results, nil
}

func (r *Root) printResult(res pipeline.Result) {
	switch res.Job.Type {
	case pipeline.JobMatch:
		r.printf("%s -> %s: %v candidates (quadlevels %v/%v)",
			res.Meta["reference"], res.Meta["target"], res.Meta["candidates"], res.Meta["ref_level"], res.Meta["target_level"])
		if d, ok := res.Meta["best_dist"].(float64); ok {
			r.printf(", best %v ~ %v at %.2e", res.Meta["best_ref"], res.Meta["best_target"], d)
		}
		r.printf("\n")
	default:
		if res.Catalog != nil {
			r.printf("%s\n", res.Catalog.String())
		}
	}
	if paths, ok := res.Meta["visuals"].([]string); ok {
		for _, p := range paths {
			r.printf("  wrote %s\n", p)
		}
	}
}
