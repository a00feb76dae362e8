package config

import (
	"runtime"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// CurrentVersion is the configuration schema version written by Default.
const CurrentVersion = "1"

// Config is the root configuration document.
type Config struct {
	// Version indicates the configuration schema version
	Version string `yaml:"version" json:"version" mapstructure:"version"`

	Pool          PoolConfig          `yaml:"pool" json:"pool" mapstructure:"pool"`
	Stress        StressConfig        `yaml:"stress" json:"stress" mapstructure:"stress"`
	Log           LogConfig           `yaml:"log" json:"log" mapstructure:"log"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// PoolConfig describes the pool under test.
type PoolConfig struct {
	// Name labels the pool in logs and metrics
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Capacity is the fixed number of slots
	Capacity uint32 `yaml:"capacity" json:"capacity" mapstructure:"capacity"`
	// ArenaLimitBytes caps the arena reservation; 0 means unlimited
	ArenaLimitBytes uint64 `yaml:"arena_limit_bytes" json:"arena_limit_bytes" mapstructure:"arena_limit_bytes"`
}

// StressConfig controls the concurrent stress driver.
type StressConfig struct {
	// Workers is the number of concurrent goroutines
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`
	// Duration bounds the run; the run also stops when its context ends
	Duration time.Duration `yaml:"duration" json:"duration" mapstructure:"duration"`
	// Seed makes the per-worker operation sequence reproducible
	Seed int64 `yaml:"seed" json:"seed" mapstructure:"seed"`
	// AllocRatio is the probability that an operation allocates
	AllocRatio float64 `yaml:"alloc_ratio" json:"alloc_ratio" mapstructure:"alloc_ratio"`
	// HoldMax is the most values a single worker keeps live
	HoldMax int `yaml:"hold_max" json:"hold_max" mapstructure:"hold_max"`
	// ValidateEvery runs a full invariant check every N operations per worker; 0 disables
	ValidateEvery int `yaml:"validate_every" json:"validate_every" mapstructure:"validate_every"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level       string   `yaml:"level" json:"level" mapstructure:"level"`
	Development bool     `yaml:"development" json:"development" mapstructure:"development"`
	Encoding    string   `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
	OutputPaths []string `yaml:"output_paths,omitempty" json:"output_paths,omitempty" mapstructure:"output_paths"`
}

// ObservabilityConfig contains tracing and metrics settings.
type ObservabilityConfig struct {
	// Tracing enables the stdout span exporter
	Tracing bool `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
	// SampleRatio is the fraction of traces recorded when tracing is on
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" mapstructure:"sample_ratio"`
	// MetricsAddr serves /metrics when non-empty (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
}

// DefaultArenaLimitBytes bounds the arena of a default pool at 1 GiB.
const DefaultArenaLimitBytes = 1 << 30

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Pool: PoolConfig{
			Name:            "stress",
			Capacity:        1024,
			ArenaLimitBytes: DefaultArenaLimitBytes,
		},
		Stress: StressConfig{
			Workers:       runtime.NumCPU(),
			Duration:      5 * time.Second,
			Seed:          1,
			AllocRatio:    0.6,
			HoldMax:       32,
			ValidateEvery: 1000,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Observability: ObservabilityConfig{
			SampleRatio: 1.0,
		},
	}
}

// Logger converts the log section into a logger.Config.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:       l.Level,
		Development: l.Development,
		Encoding:    l.Encoding,
		OutputPaths: l.OutputPaths,
	}
}

// Validate validates the configuration for correctness.
// It checks required fields and ensures values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Pool.Name == "" {
		return invalid("pool.name", "is required")
	}
	if c.Pool.Capacity == 0 || c.Pool.Capacity > pool.MaxCapacity {
		return invalid("pool.capacity", "must be between 1 and the maximum capacity").
			WithDetail("value", c.Pool.Capacity)
	}
	if c.Stress.Workers <= 0 {
		return invalid("stress.workers", "must be positive").WithDetail("value", c.Stress.Workers)
	}
	if c.Stress.Duration <= 0 {
		return invalid("stress.duration", "must be positive").WithDetail("value", c.Stress.Duration)
	}
	if c.Stress.AllocRatio <= 0 || c.Stress.AllocRatio > 1 {
		return invalid("stress.alloc_ratio", "must be in (0, 1]").WithDetail("value", c.Stress.AllocRatio)
	}
	if c.Stress.HoldMax <= 0 {
		return invalid("stress.hold_max", "must be positive").WithDetail("value", c.Stress.HoldMax)
	}
	if c.Stress.ValidateEvery < 0 {
		return invalid("stress.validate_every", "cannot be negative").WithDetail("value", c.Stress.ValidateEvery)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "is not a valid level").WithDetail("value", c.Log.Level)
	}
	switch c.Log.Encoding {
	case "", "json", "console":
	default:
		return invalid("log.encoding", "must be json or console").WithDetail("value", c.Log.Encoding)
	}
	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return invalid("observability.sample_ratio", "must be in [0, 1]").
			WithDetail("value", c.Observability.SampleRatio)
	}
	return nil
}

func invalid(field, msg string) *errors.Error {
	return errors.New(errors.ErrorTypeConfig, field+" "+msg).WithDetail("field", field)
}
