package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fitsalign/internal/cli"
	"fitsalign/internal/config"
	"fitsalign/internal/logging"
	"fitsalign/internal/pipeline"
	"fitsalign/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", config.Path(), err)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	var store *storage.Store
	if cfg.Processing.Persist {
		store, err = storage.New(cfg.Paths.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(ctx, cfg.Processing.ParallelJobs, logger, store, pipeline.SettingsFromConfig(cfg))
	defer pipe.Stop()

	logger.Debug("fitsalign starting", "config", config.Path(), "workers", cfg.Processing.ParallelJobs, "database", cfg.Paths.DatabasePath)
	return cli.NewRootCmd(cfg, logger, store, pipe).ExecuteContext(ctx)
}
