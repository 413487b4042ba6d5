package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30.0, cfg.Engine.FrameRate)
	assert.Equal(t, 11, cfg.Engine.Clustering.Centres)
	assert.Equal(t, 3000, cfg.Engine.Clustering.MaxSamples)
	assert.Equal(t, uint64(1000), cfg.Engine.Clustering.Seed)
	assert.True(t, cfg.Engine.Clustering.Seeded)
	assert.Equal(t, 5, cfg.Engine.Divider.Capacity)
	assert.Equal(t, 0.1, cfg.Engine.Divider.CloseTolerance)
	assert.Equal(t, 200.0, cfg.Engine.Ranges.Pitch.Min)
	assert.Equal(t, 4600.0, cfg.Engine.Ranges.RMS.Max)
	assert.Equal(t, time.Second, cfg.Database.FlushInterval)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tonal.yaml")
	content := `
log:
  level: debug
  format: json
engine:
  frame_rate: 60
  divider:
    capacity: 8
    reject_close_lines: true
  ranges:
    pitch:
      min: 100
      max: 2000
database:
  flush_interval: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 60.0, cfg.Engine.FrameRate)
	assert.Equal(t, 8, cfg.Engine.Divider.Capacity)
	assert.True(t, cfg.Engine.Divider.RejectCloseLines)
	assert.Equal(t, 100.0, cfg.Engine.Ranges.Pitch.Min)
	assert.Equal(t, 2000.0, cfg.Engine.Ranges.Pitch.Max)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 0.0, cfg.Engine.Ranges.RMS.Min)
	assert.Equal(t, 11, cfg.Engine.Clustering.Centres)
	assert.Equal(t, 250*time.Millisecond, cfg.Database.FlushInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TONAL_ENGINE_DIVIDER_CAPACITY", "7")
	t.Setenv("TONAL_DATABASE_URL", "postgres://localhost/tonal")
	t.Setenv("TONAL_SPOTIFY_CLIENT_ID", "abc")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.Divider.Capacity)
	assert.Equal(t, "postgres://localhost/tonal", cfg.Database.URL)
	assert.Equal(t, "abc", cfg.Spotify.ClientID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("TONAL_ENGINE_DIVIDER_CAPACITY", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "engine.divider.capacity")
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero frame rate", func(c *Config) { c.Engine.FrameRate = 0 }, "engine.frame_rate"},
		{"frame rate too high", func(c *Config) { c.Engine.FrameRate = 2e9 }, "engine.frame_rate must be at most"},
		{"inverted range", func(c *Config) { c.Engine.Ranges.RMS.Max = -1 }, "engine.ranges.rms"},
		{"window too small", func(c *Config) { c.Engine.Clustering.MaxSamples = 11 }, "max_samples"},
		{"zero decay", func(c *Config) { c.Engine.Points.DecayRate = 0 }, "decay_rate"},
		{"no tolerance", func(c *Config) { c.Engine.Divider.CloseTolerance = 0 }, "close_tolerance"},
		{"no address", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Engine.FrameRate = 0
	cfg.Engine.Divider.Capacity = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.frame_rate")
	assert.Contains(t, err.Error(), "engine.divider.capacity")
}

func TestEngineConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Engine.Seed = 42
	cfg.Engine.Divider.SortPointsByAge = true

	ec := cfg.EngineConfig()
	assert.Equal(t, uint64(42), ec.Seed)
	assert.Equal(t, 11, ec.Clustering.Centres)
	assert.Equal(t, 5, ec.Divider.Capacity)
	assert.True(t, ec.Divider.SortPointsByAge)
	assert.Equal(t, 1.0/40.0, ec.Points.MatchTolerance)
	assert.Equal(t, cfg.Engine.Ranges, ec.Ranges)
}

func TestFrameInterval(t *testing.T) {
	cfg := &Config{Engine: EngineConfig{FrameRate: 40}}
	assert.Equal(t, 25*time.Millisecond, cfg.FrameInterval())

	cfg.Engine.FrameRate = 2e9
	assert.Equal(t, time.Nanosecond, cfg.FrameInterval())
}
