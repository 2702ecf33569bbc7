// Package config loads safegym run settings from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"safegym/internal/envid"
	"safegym/internal/limiter"
	"safegym/internal/logging"
	"safegym/internal/model"
	"safegym/internal/policy"
	"safegym/internal/runner"
	"safegym/internal/sim"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Env          string    `yaml:"env"`
	Episodes     int       `yaml:"episodes"`
	Policy       string    `yaml:"policy"`
	PolicyAction []float64 `yaml:"policy_action,omitempty"`
	Seed         int64     `yaml:"seed"`
	Masked       bool      `yaml:"masked"`
	Debug        bool      `yaml:"debug"`
	Trace        bool      `yaml:"trace"`
	// StepLog logs every limiter decision at info level.
	StepLog bool `yaml:"step_log"`

	Band  BandConfig  `yaml:"band"`
	World WorldConfig `yaml:"world"`
	Store StoreConfig `yaml:"store"`
	Log   LogConfig   `yaml:"log"`

	// Artifacts is the base directory for exported run artifacts; empty disables export.
	Artifacts  string `yaml:"artifacts,omitempty"`
	MetricsOut string `yaml:"metrics_out,omitempty"`
}

// BandConfig is the proximity band over which the forward bound shrinks.
type BandConfig struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// WorldConfig overrides point-hazard world parameters. Zero keeps the level default.
type WorldConfig struct {
	Hazards         int     `yaml:"hazards,omitempty"`
	HazardSize      float64 `yaml:"hazard_size,omitempty"`
	GoalSize        float64 `yaml:"goal_size,omitempty"`
	PlacementExtent float64 `yaml:"placement_extent,omitempty"`
	LidarBins       int     `yaml:"lidar_bins,omitempty"`
	LidarMaxDist    float64 `yaml:"lidar_max_dist,omitempty"`
	LidarAliasing   bool    `yaml:"lidar_aliasing,omitempty"`
	MaxSteps        int     `yaml:"max_steps,omitempty"`
}

// StoreConfig selects the persistence backend. An empty kind uses the build default.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Env:      envid.PointHazard,
		Episodes: 10,
		Policy:   policy.RandomName,
		Seed:     1,
		Masked:   true,
		Band: BandConfig{
			Start: limiter.DefaultInterventionStart,
			End:   limiter.DefaultInterventionEnd,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Env) == "" {
		return fmt.Errorf("%w: env is required", ErrInvalid)
	}
	if c.Episodes <= 0 {
		return fmt.Errorf("%w: episodes must be > 0, got %d", ErrInvalid, c.Episodes)
	}
	if _, err := policy.FromName(c.Policy, c.Seed, model.Action{}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if n := len(c.PolicyAction); n != 0 && n != 2 {
		return fmt.Errorf("%w: policy_action must have 2 components, got %d", ErrInvalid, n)
	}
	if _, err := c.LimiterBand(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.World.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Store.Kind {
	case "", "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("%w: store.path is required for sqlite", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported store kind %q", ErrInvalid, c.Store.Kind)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unsupported log format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

func (w WorldConfig) validate() error {
	if w.Hazards < 0 {
		return fmt.Errorf("world.hazards must be >= 0, got %d", w.Hazards)
	}
	if w.LidarBins != 0 && (w.LidarBins < 4 || w.LidarBins%2 != 0) {
		return fmt.Errorf("world.lidar_bins must be an even number >= 4, got %d", w.LidarBins)
	}
	if w.MaxSteps < 0 {
		return fmt.Errorf("world.max_steps must be >= 0, got %d", w.MaxSteps)
	}
	for name, v := range map[string]float64{
		"world.hazard_size":      w.HazardSize,
		"world.goal_size":        w.GoalSize,
		"world.placement_extent": w.PlacementExtent,
		"world.lidar_max_dist":   w.LidarMaxDist,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0, got %g", name, v)
		}
	}
	return nil
}

func (c Config) LimiterBand() (limiter.Band, error) {
	return limiter.NewBand(c.Band.Start, c.Band.End)
}

func (w WorldConfig) SimOptions() sim.Options {
	return sim.Options{
		Hazards:         w.Hazards,
		HazardSize:      w.HazardSize,
		GoalSize:        w.GoalSize,
		PlacementExtent: w.PlacementExtent,
		LidarBins:       w.LidarBins,
		LidarMaxDist:    w.LidarMaxDist,
		LidarAliasing:   w.LidarAliasing,
		MaxSteps:        w.MaxSteps,
	}
}

// RunConfig converts a validated config into a runner request.
func (c Config) RunConfig() (runner.RunConfig, error) {
	band, err := c.LimiterBand()
	if err != nil {
		return runner.RunConfig{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var params model.Action
	copy(params[:], c.PolicyAction)
	return runner.RunConfig{
		Env:          c.Env,
		EnvOptions:   c.World.SimOptions(),
		Episodes:     c.Episodes,
		Policy:       c.Policy,
		PolicyParams: params,
		Seed:         c.Seed,
		Masked:       c.Masked,
		Debug:        c.Debug,
		Band:         band,
		CaptureTrace: c.Trace,
		StepLog:      c.StepLog,
	}, nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	return logging.ParseLevel(l.Level)
}

func (l LogConfig) Logging() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format}
}
