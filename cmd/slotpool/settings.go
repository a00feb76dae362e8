package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/slotpool/pkg/config"
)

// envPrefix is prepended to every configuration key read from the
// environment, e.g. SLOTPOOL_STRESS_WORKERS.
const envPrefix = "SLOTPOOL"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"pool-name":      "pool.name",
	"capacity":       "pool.capacity",
	"arena-limit":    "pool.arena_limit_bytes",
	"workers":        "stress.workers",
	"duration":       "stress.duration",
	"seed":           "stress.seed",
	"alloc-ratio":    "stress.alloc_ratio",
	"hold-max":       "stress.hold_max",
	"validate-every": "stress.validate_every",
	"log-level":      "log.level",
	"log-encoding":   "log.encoding",
	"trace":          "observability.tracing",
	"sample-ratio":   "observability.sample_ratio",
	"metrics-addr":   "observability.metrics_addr",
}

// loadSettings resolves the configuration for cmd. Precedence, highest
// first: flags set on the command line, SLOTPOOL_* environment variables,
// the --config file, built-in defaults.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *config.Config) {
	v.SetDefault("version", cfg.Version)

	v.SetDefault("pool.name", cfg.Pool.Name)
	v.SetDefault("pool.capacity", cfg.Pool.Capacity)
	v.SetDefault("pool.arena_limit_bytes", cfg.Pool.ArenaLimitBytes)

	v.SetDefault("stress.workers", cfg.Stress.Workers)
	v.SetDefault("stress.duration", cfg.Stress.Duration)
	v.SetDefault("stress.seed", cfg.Stress.Seed)
	v.SetDefault("stress.alloc_ratio", cfg.Stress.AllocRatio)
	v.SetDefault("stress.hold_max", cfg.Stress.HoldMax)
	v.SetDefault("stress.validate_every", cfg.Stress.ValidateEvery)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.encoding", cfg.Log.Encoding)
	v.SetDefault("log.output_paths", cfg.Log.OutputPaths)

	v.SetDefault("observability.tracing", cfg.Observability.Tracing)
	v.SetDefault("observability.sample_ratio", cfg.Observability.SampleRatio)
	v.SetDefault("observability.metrics_addr", cfg.Observability.MetricsAddr)
}
