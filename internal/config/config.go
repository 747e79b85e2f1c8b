package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fitsalign/internal/fsutil"
	"fitsalign/internal/match"
	"fitsalign/internal/quad"
	"fitsalign/internal/star"
)

const (
	// EnvConfig names the environment variable that overrides the config path.
	EnvConfig = "FITSALIGN_CONFIG"
	// DefaultConfigPath is read when EnvConfig is unset.
	DefaultConfigPath = "~/.config/fitsalign/config.json"
	// DefaultYAMLConfigPath is read instead when only it exists.
	DefaultYAMLConfigPath = "~/.config/fitsalign/config.yaml"
	defaultParallel       = 4
)

// Config holds user-editable settings for the pipeline.
type Config struct {
	Processing Processing `json:"processing" yaml:"processing"`
	Logging    Logging    `json:"logging" yaml:"logging"`
	Paths      Paths      `json:"paths" yaml:"paths"`
	StarList   StarList   `json:"starlist" yaml:"starlist"`
	Quads      Quads      `json:"quads" yaml:"quads"`
	Match      Match      `json:"match" yaml:"match"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int  `json:"parallel_jobs" yaml:"parallel_jobs"`
	Visualize    bool `json:"visualize" yaml:"visualize"`
	Persist      bool `json:"persist" yaml:"persist"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `json:"format" yaml:"format"`           // text, json
	FileOutput bool   `json:"file_output" yaml:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir" yaml:"log_dir"`
}

// Paths configures default input/output locations.
type Paths struct {
	DefaultInput string `json:"default_input" yaml:"default_input"`
	VisualDir    string `json:"visual_dir" yaml:"visual_dir"`
	DatabasePath string `json:"database_path" yaml:"database_path"`
}

// StarList configures star list construction.
type StarList struct {
	SkipSaturated bool    `json:"skip_saturated" yaml:"skip_saturated"`
	MaxStars      int     `json:"max_stars" yaml:"max_stars"`
	Border        float64 `json:"border" yaml:"border"`
}

// Quads configures escalation. An empty Ladder means quad.DefaultLadder.
type Quads struct {
	TargetLevel int         `json:"target_level" yaml:"target_level"`
	Ladder      quad.Ladder `json:"ladder,omitempty" yaml:"ladder,omitempty"`
}

// Match configures candidate proposal between two catalogs.
type Match struct {
	Tolerance     float64 `json:"tolerance" yaml:"tolerance"`
	MinCandidates int     `json:"min_candidates" yaml:"min_candidates"`
}

// BuildParams converts the star list section.
func (s StarList) BuildParams() star.BuildParams {
	return star.BuildParams{SkipSaturated: s.SkipSaturated, MaxCount: s.MaxStars, BorderFraction: s.Border}
}

// EffectiveLadder returns the configured ladder or the default one.
func (q Quads) EffectiveLadder() quad.Ladder {
	if len(q.Ladder) == 0 {
		return quad.DefaultLadder.Clone()
	}
	return q.Ladder.Clone()
}

// Options converts the match section.
func (m Match) Options() match.Options {
	return match.Options{Tolerance: m.Tolerance, MinCandidates: m.MinCandidates}
}

// Path returns the config path in effect: $FITSALIGN_CONFIG, else the
// first default location that exists, else DefaultConfigPath.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	jsonPath, err1 := expandUser(DefaultConfigPath)
	yamlPath, err2 := expandUser(DefaultYAMLConfigPath)
	if err1 == nil && err2 == nil {
		if found := fsutil.FirstExisting(jsonPath, yamlPath); found != "" {
			return found
		}
	}
	return DefaultConfigPath
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads configuration from path. A missing file yields defaults.
// Files ending in .yaml or .yml are decoded as YAML, everything else as
// JSON.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := decode(f, expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", expanded, err)
	}
	return cfg, nil
}

func decode(r io.Reader, path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err := yaml.NewDecoder(r).Decode(cfg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	default:
		return json.NewDecoder(r).Decode(cfg)
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if c.Processing.ParallelJobs < 1 {
		return fmt.Errorf("processing.parallel_jobs must be at least 1, got %d", c.Processing.ParallelJobs)
	}
	if c.StarList.MaxStars < 4 {
		return fmt.Errorf("starlist.max_stars must be at least 4, got %d", c.StarList.MaxStars)
	}
	if c.StarList.Border < 0 {
		return fmt.Errorf("starlist.border must not be negative, got %g", c.StarList.Border)
	}
	ladder := c.Quads.EffectiveLadder()
	for i, p := range ladder {
		if p.N < 3 {
			return fmt.Errorf("quads.ladder[%d]: n must be at least 3, got %d", i, p.N)
		}
		if p.F < 1 || p.S < 0 {
			return fmt.Errorf("quads.ladder[%d]: need f >= 1 and s >= 0, got f=%d s=%d", i, p.F, p.S)
		}
	}
	if c.Quads.TargetLevel < 0 || c.Quads.TargetLevel > ladder.Levels() {
		return fmt.Errorf("quads.target_level must be within 0..%d, got %d", ladder.Levels(), c.Quads.TargetLevel)
	}
	if c.Match.Tolerance <= 0 {
		return fmt.Errorf("match.tolerance must be positive, got %g", c.Match.Tolerance)
	}
	if c.Match.MinCandidates < 1 {
		return fmt.Errorf("match.min_candidates must be at least 1, got %d", c.Match.MinCandidates)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Processing: Processing{
			ParallelJobs: defaultParallel,
			Persist:      true,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DefaultInput: ".",
			VisualDir:    "fitsalign_visu",
			DatabasePath: filepath.Join(os.TempDir(), "fitsalign.db"),
		},
		StarList: StarList{
			MaxStars: star.DefaultMaxCount,
			Border:   star.DefaultBorder,
		},
		Quads: Quads{
			TargetLevel: 1,
		},
		Match: Match{
			Tolerance:     match.DefaultTolerance,
			MinCandidates: match.DefaultMinCandidates,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
