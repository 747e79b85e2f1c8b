package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fitsalign/internal/config"
	"fitsalign/internal/imgcat"
)

// New returns a slog.Logger with the provided level string (info, debug, warn, error).
// format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	return NewWriter(os.Stdout, level, format)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup configures global logging: stdout plus an optional dated log file.
// JSON format uses the slog JSON handler, text the traditional handler.
func Setup(cfg *config.Config) (*slog.Logger, error) {
	level := parseLevel(cfg.Logging.Level)

	writers := []io.Writer{os.Stdout}

	if cfg.Logging.FileOutput {
		if err := os.MkdirAll(cfg.Logging.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile := filepath.Join(cfg.Logging.LogDir, fmt.Sprintf("fitsalign-%s.log",
			time.Now().Format("2006-01-02")))

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)

		// Best effort; the dated file is the real log.
		currentLogPath := filepath.Join(cfg.Logging.LogDir, "fitsalign-current.log")
		os.Remove(currentLogPath)
		_ = os.Symlink(filepath.Base(logFile), currentLogPath)
	}

	out := io.MultiWriter(writers...)

	var logger *slog.Logger
	if strings.ToLower(cfg.Logging.Format) == "json" {
		logger = NewWriter(out, cfg.Logging.Level, "json")
	} else {
		logger = slog.New(NewTraditionalHandler(out, level))
	}
	slog.SetDefault(logger)

	logger.Debug("fitsalign logging initialized",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"file_output", cfg.Logging.FileOutput,
		"log_dir", cfg.Logging.LogDir,
	)

	return logger, nil
}

// TraditionalHandler implements slog.Handler with traditional log formatting:
// "[LEVEL] message [key=value ...]".
type TraditionalHandler struct {
	logger *log.Logger
	level  slog.Level
	attrs  []slog.Attr
	group  string
}

// NewTraditionalHandler writes records at or above level to w.
func NewTraditionalHandler(w io.Writer, level slog.Level) *TraditionalHandler {
	return &TraditionalHandler{logger: log.New(w, "", log.LstdFlags), level: level}
}

func (h *TraditionalHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *TraditionalHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := r.Message
	attrs := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs = append(attrs, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.format(a))
		return true
	})

	if len(attrs) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(attrs, " "))
	}

	h.logger.Printf("[%s] %s", strings.ToUpper(r.Level.String()), msg)
	return nil
}

func (h *TraditionalHandler) format(a slog.Attr) string {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value)
}

// WithAttrs stores attrs qualified by the group open at this point; later
// groups do not apply to them.
func (h *TraditionalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *TraditionalHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group == "" {
		next.group = name
	} else {
		next.group += "." + name
	}
	return &next
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogJobStart logs the beginning of a processing job
func LogJobStart(logger *slog.Logger, jobType, jobID, inputPath string, options map[string]any) {
	logger.Info("job started",
		"type", jobType,
		"id", jobID,
		"input", inputPath,
		"options", options,
	)
}

// LogJobComplete logs successful job completion
func LogJobComplete(logger *slog.Logger, jobType, jobID string, duration time.Duration, resultInfo map[string]any) {
	logger.Info("job completed successfully",
		"type", jobType,
		"id", jobID,
		"duration_ms", duration.Milliseconds(),
		"duration_human", duration.String(),
		"result", resultInfo,
	)
}

// LogJobError logs job failures
func LogJobError(logger *slog.Logger, jobType, jobID string, duration time.Duration, err error, context map[string]any) {
	logger.Error("job failed",
		"type", jobType,
		"id", jobID,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
		"context", context,
	)
}

// LogEscalation logs the counts of one quadlevel step.
func LogEscalation(logger *slog.Logger, image string, step imgcat.Step) {
	logger.Debug("quadlevel done",
		"image", image,
		"quadlevel", step.Level,
		"n", step.Params.N,
		"f", step.Params.F,
		"s", step.Params.S,
		"anchors", step.Anchors,
		"generated", step.Generated,
		"degenerate", step.Degenerate,
		"added", step.Added,
		"total", step.Total,
	)
}

// LogExcluded logs an image left out of a batch.
func LogExcluded(logger *slog.Logger, image string, err error) {
	logger.Warn("image excluded",
		"image", image,
		"reason", err.Error(),
	)
}
