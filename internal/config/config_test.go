package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsalign/internal/quad"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "nope.json"))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "processing": {"parallel_jobs": 2},
  "starlist": {"skip_saturated": true, "max_stars": 120, "border": 0.02},
  "quads": {"target_level": 2, "ladder": [{"n": 6, "f": 1, "s": 0}, {"n": 5, "f": 4, "s": 1}]}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv(EnvConfig, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Processing.ParallelJobs)
	assert.True(t, cfg.StarList.SkipSaturated)
	assert.Equal(t, 120, cfg.StarList.BuildParams().MaxCount)
	assert.Equal(t, quad.Ladder{{N: 6, F: 1}, {N: 5, F: 4, S: 1}}, cfg.Quads.EffectiveLadder())
	assert.Equal(t, "info", cfg.Logging.Level, "untouched sections keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
logging:
  level: debug
  format: json
match:
  tolerance: 0.01
  min_candidates: 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0.01, cfg.Match.Options().Tolerance)
	assert.Equal(t, 3, cfg.Match.Options().MinCandidates)
	assert.Equal(t, quad.DefaultLadder, cfg.Quads.EffectiveLadder())
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"parallel", func(c *Config) { c.Processing.ParallelJobs = 0 }},
		{"max stars", func(c *Config) { c.StarList.MaxStars = 3 }},
		{"border", func(c *Config) { c.StarList.Border = -0.1 }},
		{"ladder n", func(c *Config) { c.Quads.Ladder = quad.Ladder{{N: 2, F: 1}} }},
		{"ladder f", func(c *Config) { c.Quads.Ladder = quad.Ladder{{N: 5, F: 0}} }},
		{"target level", func(c *Config) { c.Quads.TargetLevel = 6 }},
		{"tolerance", func(c *Config) { c.Match.Tolerance = 0 }},
		{"min candidates", func(c *Config) { c.Match.MinCandidates = 0 }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandUser("~/.config/fitsalign/config.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/fitsalign/config.json"), got)

	got, err = expandUser("/etc/fitsalign.json")
	require.NoError(t, err)
	assert.Equal(t, "/etc/fitsalign.json", got)
}

func TestPathFindsDefaultLocations(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfig, "")

	assert.Equal(t, DefaultConfigPath, Path())

	dir := filepath.Join(home, ".config", "fitsalign")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("processing:\n  parallel_jobs: 3\n"), 0o644))
	assert.Equal(t, yamlPath, Path())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Processing.ParallelJobs)

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{}`), 0o644))
	assert.Equal(t, jsonPath, Path(), "JSON wins when both exist")
}
