package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fitsalign/internal/catalog"
	"fitsalign/internal/config"
	"fitsalign/internal/fsutil"
	"fitsalign/internal/imgcat"
	"fitsalign/internal/logging"
	"fitsalign/internal/pipeline"
	"fitsalign/internal/storage"
	"fitsalign/internal/visual"
	"fitsalign/internal/watch"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe pipelineClient) *cobra.Command {
	root := NewRoot(pipe, cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "fitsalign",
		Short: "fitsalign builds quads for reference-free astrometric registration",
		Long: `fitsalign turns source catalogs of astronomical images into ranked star
lists and deduplicated, scale and rotation invariant quads, and proposes
quad correspondences between images.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			root.out = cmd.OutOrStdout()
		},
	}

	rootCmd.AddCommand(newQuadsCmd(root))
	rootCmd.AddCommand(newMatchCmd(root))
	rootCmd.AddCommand(newVisualizeCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newJobsCmd(root))
	rootCmd.AddCommand(newCatalogsCmd(root))
	rootCmd.AddCommand(newEventsCmd(root))
	rootCmd.AddCommand(newConvertCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newQuadsCmd(root *Root) *cobra.Command {
	var (
		level     int
		visualize bool
		visualDir string
	)

	cmd := &cobra.Command{
		Use:   "quads [catalog|directory]...",
		Short: "Build star lists and quads for catalogs",
		Long: `Load every catalog (SExtractor ASCII, CSV, JSON lines or Parquet), build its
star list and escalate quad generation to the requested quadlevel. Catalogs
are processed in parallel; empty catalogs are reported and skipped. Without
arguments the configured default input is used.

Examples:
  fitsalign quads night1/
  fitsalign quads --level 3 --visualize frame_001.cat frame_002.cat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if root.cfg.Paths.DefaultInput == "" {
					return errors.New("no input given and paths.default_input is empty")
				}
				args = []string{root.cfg.Paths.DefaultInput}
			}
			files, err := fsutil.ExpandInputs(args)
			if err != nil {
				return err
			}
			opts := map[string]any{"source": "cli"}
			if cmd.Flags().Changed("level") {
				opts["level"] = level
			}
			if visualize {
				opts["visual_dir"] = visualDir
			}

			jobs := make([]pipeline.Job, 0, len(files))
			for _, f := range files {
				jobs = append(jobs, pipeline.NewJob(pipeline.JobQuads, f, copyOptions(opts)))
			}
			_, err = root.runJobs(cmd.Context(), jobs)
			return err
		},
	}

	cmd.Flags().IntVarP(&level, "level", "l", root.cfg.Quads.TargetLevel, "quadlevel to escalate each catalog to")
	cmd.Flags().BoolVar(&visualize, "visualize", false, "write star and quad diagnostic PNGs")
	cmd.Flags().StringVar(&visualDir, "visual-dir", root.cfg.Paths.VisualDir, "directory for diagnostic PNGs")

	return cmd
}

func newMatchCmd(root *Root) *cobra.Command {
	var (
		tolerance     float64
		minCandidates int
	)

	cmd := &cobra.Command{
		Use:   "match <reference> <target>",
		Short: "Propose quad correspondences between two catalogs",
		Long: `Escalate two catalogs until their quad descriptors yield enough candidate
correspondences, or both run out of quadlevels.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				if !catalog.IsCatalogFile(a) {
					return fmt.Errorf("%s: not a catalog file", a)
				}
			}
			job := pipeline.NewJob(pipeline.JobMatch, args[1], map[string]any{
				"reference":      args[0],
				"tolerance":      tolerance,
				"min_candidates": minCandidates,
				"source":         "cli",
			})
			_, err := root.runJobs(cmd.Context(), []pipeline.Job{job})
			return err
		},
	}

	cmd.Flags().Float64Var(&tolerance, "tolerance", root.cfg.Match.Tolerance, "maximum descriptor distance for a candidate")
	cmd.Flags().IntVar(&minCandidates, "min-candidates", root.cfg.Match.MinCandidates, "candidates needed before escalation stops")

	return cmd
}

func newVisualizeCmd(root *Root) *cobra.Command {
	var (
		level int
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "visualize <catalog>",
		Short: "Render star and quad diagnostics of one catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			cat := imgcat.New(args[0], imgcat.WithLadder(root.cfg.Quads.EffectiveLadder()), imgcat.WithLogger(root.log))
			if err := cat.MakeStarList(raw, root.cfg.StarList.BuildParams()); err != nil {
				return err
			}
			for _, step := range cat.EscalateTo(level) {
				logging.LogEscalation(root.log, cat.Name(), step)
			}
			paths, err := visual.WriteAll(cat, dir)
			if err != nil {
				return err
			}
			root.printf("%s\n", cat.String())
			for _, p := range paths {
				root.printf("  wrote %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&level, "level", "l", root.cfg.Quads.TargetLevel, "quadlevel to escalate to before rendering")
	cmd.Flags().StringVar(&dir, "dir", root.cfg.Paths.VisualDir, "output directory")

	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		settle time.Duration
		level  int
	)

	cmd := &cobra.Command{
		Use:   "watch <directory>...",
		Short: "Process catalog files as they appear",
		Long: `Watch directories for new or rewritten catalog files and queue a quads job
for each once it has stopped changing. Runs until interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := watch.New(args, 100, root.log)
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
			return root.watchLoop(ctx, w.Events(), settle, level)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "quiet period before a changed file is processed")
	cmd.Flags().IntVarP(&level, "level", "l", root.cfg.Quads.TargetLevel, "quadlevel to escalate each catalog to")

	return cmd
}

// watchLoop queues a quads job for every settled event until ctx is done
// or events is closed.
func (r *Root) watchLoop(ctx context.Context, events <-chan watch.Event, settle time.Duration, level int) error {
	results, unsub := r.pipeline.Subscribe()
	defer unsub()

	deb := watch.NewDebouncer(settle, 64)
	go func() {
		defer deb.Close()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				deb.Add(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	settled := deb.Out()
	for {
		select {
		case ev, ok := <-settled:
			if !ok {
				return nil
			}
			job := pipeline.NewJob(pipeline.JobQuads, ev.Path, map[string]any{"level": level, "source": "watch"})
			if err := r.store.RecordCatalogEvent(storage.CatalogEvent{
				FilePath: ev.Path, EventType: ev.Operation, EventTime: ev.Time, JobID: job.ID,
			}); err != nil {
				r.log.Warn("failed to record catalog event", "path", ev.Path, "error", err)
			}
			if err := r.pipeline.SubmitWait(ctx, job); err != nil {
				return err
			}
			r.log.Info("job queued", "type", job.Type, "id", job.ID, "input", job.InputPath)
		case res, ok := <-results:
			if !ok {
				return errors.New("pipeline stopped")
			}
			if res.Error != nil {
				r.printf("%20s: %v\n", res.Job.InputPath, res.Error)
			} else {
				r.printResult(res)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func newJobsCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "List recent jobs or show the result of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				meta, err := root.store.JobMeta(args[0])
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(meta, "", "  ")
				if err != nil {
					return err
				}
				root.printf("%s\n", data)
				return nil
			}
			jobs, err := root.store.RecentJobs(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(root.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tINPUT\tCREATED\tERROR")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", j.ID, j.JobType, j.Status, j.InputPath, j.CreatedAt.Format(time.DateTime), j.Error)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")
	return cmd
}

func newCatalogsCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "catalogs [name|source]",
		Short: "List stored catalog snapshots or the quads of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return root.showCatalog(args[0])
			}
			recs, err := root.store.Catalogs()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(root.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTARS\tQUADS\tQUADLEVEL\tAREA\tSOURCE")
			for _, c := range recs {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.0fx%.0f\t%s\n", c.Name, c.StarCount, c.QuadCount, c.Level, c.Area.Width(), c.Area.Height(), c.Source)
			}
			return tw.Flush()
		},
	}
}

func (r *Root) showCatalog(name string) error {
	rec, err := r.store.CatalogSummary(name)
	if err != nil {
		return err
	}
	quads, err := r.store.CatalogQuads(rec.Source)
	if err != nil {
		return err
	}
	r.printf("%s: %d stars, %d quads, quadlevel %d, mindist %.1f (updated %s)\n",
		rec.Name, rec.StarCount, rec.QuadCount, rec.Level, rec.MinDist, rec.UpdatedAt.Format(time.DateTime))
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTARS\tXC\tYC\tXD\tYD")
	for _, q := range quads {
		fmt.Fprintf(tw, "%d\t%v\t%.4f\t%.4f\t%.4f\t%.4f\n", q.Seq, q.Stars, q.Hash[0], q.Hash[1], q.Hash[2], q.Hash[3])
	}
	return tw.Flush()
}

func newEventsCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List catalog files seen by watch",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := root.store.CatalogEvents(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(root.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tEVENT\tPATH\tJOB")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.EventTime.Format(time.DateTime), ev.EventType, ev.FilePath, ev.JobID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	return cmd
}

func newConvertCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <catalog> <output.parquet>",
		Short: "Rewrite a catalog as Parquet",
		Long: `Read a catalog in any supported format and store its detections as a
Parquet file with columns x, y, flux and flag. Row order is kept.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f, err := catalog.DetectFormat(args[1]); err != nil || f != catalog.FormatParquet {
				return fmt.Errorf("%s: output must be a .parquet file", args[1])
			}
			stars, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			if err := catalog.WriteParquet(args[1], stars); err != nil {
				return err
			}
			root.log.Debug("catalog converted", "input", args[0], "output", args[1], "stars", len(stars))
			root.printf("wrote %d stars to %s\n", len(stars), args[1])
			return nil
		},
	}
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate fitsalign configuration",
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			switch format {
			case "json":
				data, err = json.MarshalIndent(root.cfg, "", "  ")
			case "yaml":
				data, err = yaml.Marshal(root.cfg)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}
			root.printf("Config file: %s\n\n%s\n", config.Path(), data)
			return nil
		},
	}
	showCmd.Flags().StringVar(&format, "format", "json", "output format (json, yaml)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			root.log.Debug("configuration validation", "status", "valid")
			root.printf("Configuration is valid\n")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			root.printf("fitsalign %s (%s)\n", Version, runtime.Version())
		},
	}
}

func copyOptions(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
