// Package config loads tonal-divider settings from an optional YAML file and
// TONAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/justestif/tonal-divider/internal/clustering"
	"github.com/justestif/tonal-divider/internal/divider"
	"github.com/justestif/tonal-divider/internal/engine"
	"github.com/justestif/tonal-divider/internal/features"
	"github.com/justestif/tonal-divider/internal/logging"
	"github.com/justestif/tonal-divider/internal/points"
)

// envPrefix is the prefix of every environment override, e.g.
// TONAL_ENGINE_DIVIDER_CAPACITY for engine.divider.capacity.
const envPrefix = "TONAL"

// MaxFrameRate bounds engine.frame_rate so a replay tick stays above zero.
const MaxFrameRate = 1000.0

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Log      logging.Config `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Spotify  SpotifyConfig  `mapstructure:"spotify"`
}

// EngineConfig holds the pipeline parameters.
type EngineConfig struct {
	FrameRate  float64          `mapstructure:"frame_rate"` // Frames per second when replaying
	Seed       uint64           `mapstructure:"seed"`       // 0 picks a random seed
	Ranges     features.Ranges  `mapstructure:"ranges"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Points     PointsConfig     `mapstructure:"points"`
	Divider    DividerConfig    `mapstructure:"divider"`
}

// ClusteringConfig mirrors clustering.Config.
type ClusteringConfig struct {
	Centres       int    `mapstructure:"centres"`
	MaxSamples    int    `mapstructure:"max_samples"`
	Seed          uint64 `mapstructure:"seed"`
	Seeded        bool   `mapstructure:"seeded"`
	MaxIterations int    `mapstructure:"max_iterations"`
}

// PointsConfig mirrors points.Config.
type PointsConfig struct {
	MatchTolerance float64 `mapstructure:"match_tolerance"`
	DecayRate      float64 `mapstructure:"decay_rate"`
	InitialAge     float64 `mapstructure:"initial_age"`
	MaxPoints      int     `mapstructure:"max_points"`
}

// DividerConfig mirrors divider.Config.
type DividerConfig struct {
	Capacity         int     `mapstructure:"capacity"`
	CloseTolerance   float64 `mapstructure:"close_tolerance"`
	RejectCloseLines bool    `mapstructure:"reject_close_lines"`
	SortPointsByAge  bool    `mapstructure:"sort_points_by_age"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL disables storage.
type DatabaseConfig struct {
	URL           string        `mapstructure:"url"`
	ShowName      string        `mapstructure:"show_name"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// SpotifyConfig holds Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Concurrency  int    `mapstructure:"concurrency"`
}

// newViper builds a viper instance with env overrides and every default
// registered, so that each key can be set from the environment alone.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	ranges := features.DefaultRanges()
	v.SetDefault("engine.frame_rate", 30.0)
	v.SetDefault("engine.seed", uint64(0))
	v.SetDefault("engine.ranges.pitch.min", ranges.Pitch.Min)
	v.SetDefault("engine.ranges.pitch.max", ranges.Pitch.Max)
	v.SetDefault("engine.ranges.rms.min", ranges.RMS.Min)
	v.SetDefault("engine.ranges.rms.max", ranges.RMS.Max)
	v.SetDefault("engine.ranges.kurtosis.min", ranges.Kurtosis.Min)
	v.SetDefault("engine.ranges.kurtosis.max", ranges.Kurtosis.Max)
	v.SetDefault("engine.ranges.centroid.min", ranges.Centroid.Min)
	v.SetDefault("engine.ranges.centroid.max", ranges.Centroid.Max)

	c := clustering.DefaultConfig()
	v.SetDefault("engine.clustering.centres", c.Centres)
	v.SetDefault("engine.clustering.max_samples", c.MaxSamples)
	v.SetDefault("engine.clustering.seed", c.Seed)
	v.SetDefault("engine.clustering.seeded", c.Seeded)
	v.SetDefault("engine.clustering.max_iterations", c.MaxIterations)

	p := points.DefaultConfig()
	v.SetDefault("engine.points.match_tolerance", p.MatchTolerance)
	v.SetDefault("engine.points.decay_rate", p.DecayRate)
	v.SetDefault("engine.points.initial_age", p.InitialAge)
	v.SetDefault("engine.points.max_points", p.MaxPoints)

	d := divider.DefaultConfig()
	v.SetDefault("engine.divider.capacity", d.Capacity)
	v.SetDefault("engine.divider.close_tolerance", d.CloseTolerance)
	v.SetDefault("engine.divider.reject_close_lines", d.RejectCloseLines)
	v.SetDefault("engine.divider.sort_points_by_age", d.SortPointsByAge)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.show_name", "")
	v.SetDefault("database.flush_interval", time.Second)
	v.SetDefault("database.cache_ttl", 30*24*time.Hour)

	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("spotify.concurrency", 4)
}

// Load reads the YAML file at path, when path is not empty, merges TONAL_*
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Log.Format == "json" || c.Log.Format == "console",
		"log.format must be json or console, got %q", c.Log.Format)

	e := c.Engine
	check(e.FrameRate > 0, "engine.frame_rate must be positive")
	check(e.FrameRate <= MaxFrameRate, "engine.frame_rate must be at most %g", MaxFrameRate)
	for name, r := range map[string]features.Range{
		"pitch":    e.Ranges.Pitch,
		"rms":      e.Ranges.RMS,
		"kurtosis": e.Ranges.Kurtosis,
		"centroid": e.Ranges.Centroid,
	} {
		check(r.Max > r.Min, "engine.ranges.%s.max must exceed min", name)
	}
	check(e.Clustering.Centres > 0, "engine.clustering.centres must be positive")
	check(e.Clustering.MaxSamples > e.Clustering.Centres,
		"engine.clustering.max_samples must exceed centres")
	check(e.Clustering.MaxIterations > 0, "engine.clustering.max_iterations must be positive")
	check(e.Points.MatchTolerance > 0, "engine.points.match_tolerance must be positive")
	check(e.Points.DecayRate > 0, "engine.points.decay_rate must be positive")
	check(e.Points.InitialAge > 0, "engine.points.initial_age must be positive")
	check(e.Points.MaxPoints >= 0, "engine.points.max_points must not be negative")
	check(e.Divider.Capacity > 0, "engine.divider.capacity must be positive")
	check(e.Divider.CloseTolerance > 0, "engine.divider.close_tolerance must be positive")

	check(c.Server.Addr != "", "server.addr must be set")
	check(c.Database.FlushInterval > 0, "database.flush_interval must be positive")
	check(c.Spotify.Concurrency > 0, "spotify.concurrency must be positive")

	if len(problems) == 0 {
		return nil
	}
	// Map iteration order varies.
	slices.Sort(problems)
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// EngineConfig converts the engine section for engine.New.
func (c *Config) EngineConfig() engine.Config {
	e := c.Engine
	return engine.Config{
		Ranges: e.Ranges,
		Clustering: clustering.Config{
			Centres:       e.Clustering.Centres,
			MaxSamples:    e.Clustering.MaxSamples,
			Seed:          e.Clustering.Seed,
			Seeded:        e.Clustering.Seeded,
			MaxIterations: e.Clustering.MaxIterations,
		},
		Points: points.Config{
			MatchTolerance: e.Points.MatchTolerance,
			DecayRate:      e.Points.DecayRate,
			InitialAge:     e.Points.InitialAge,
			MaxPoints:      e.Points.MaxPoints,
		},
		Divider: divider.Config{
			Capacity:         e.Divider.Capacity,
			CloseTolerance:   e.Divider.CloseTolerance,
			RejectCloseLines: e.Divider.RejectCloseLines,
			SortPointsByAge:  e.Divider.SortPointsByAge,
		},
		Seed: e.Seed,
	}
}

// FrameInterval is the replay period of one frame, never shorter than 1ns.
func (c *Config) FrameInterval() time.Duration {
	return max(time.Duration(float64(time.Second)/c.Engine.FrameRate), time.Nanosecond)
}
