package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Positive(t, cfg.Stress.Workers)
	assert.Equal(t, uint64(DefaultArenaLimitBytes), cfg.Pool.ArenaLimitBytes, "default pools are bounded")
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"empty name", func(c *Config) { c.Pool.Name = "" }, "pool.name"},
		{"zero capacity", func(c *Config) { c.Pool.Capacity = 0 }, "pool.capacity"},
		{"capacity above max", func(c *Config) { c.Pool.Capacity = ^uint32(0) }, "pool.capacity"},
		{"no workers", func(c *Config) { c.Stress.Workers = 0 }, "stress.workers"},
		{"zero duration", func(c *Config) { c.Stress.Duration = 0 }, "stress.duration"},
		{"alloc ratio zero", func(c *Config) { c.Stress.AllocRatio = 0 }, "stress.alloc_ratio"},
		{"alloc ratio above one", func(c *Config) { c.Stress.AllocRatio = 1.01 }, "stress.alloc_ratio"},
		{"hold max", func(c *Config) { c.Stress.HoldMax = 0 }, "stress.hold_max"},
		{"validate every", func(c *Config) { c.Stress.ValidateEvery = -1 }, "stress.validate_every"},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"log encoding", func(c *Config) { c.Log.Encoding = "xml" }, "log.encoding"},
		{"sample ratio", func(c *Config) { c.Observability.SampleRatio = 2 }, "observability.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

			var e *errors.Error
			require.True(t, errors.As(err, &e))
			field, _ := e.Detail("field")
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotpool.yaml")

	want := Default()
	want.Pool.Capacity = 77
	want.Pool.ArenaLimitBytes = 1 << 20
	want.Stress.Duration = 1500 * time.Millisecond
	want.Observability.MetricsAddr = ":9090"
	require.NoError(t, Save(path, want))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_SubstitutesEnv(t *testing.T) {
	t.Setenv("SLOTPOOL_TEST_NAME", "meshes")
	t.Setenv("SLOTPOOL_TEST_CAP", "12")

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"pool:\n  name: ${SLOTPOOL_TEST_NAME}\n  capacity: ${SLOTPOOL_TEST_CAP}\nstress:\n  duration: 2s\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "meshes", cfg.Pool.Name)
	assert.Equal(t, uint32(12), cfg.Pool.Capacity)
	assert.Equal(t, 2*time.Second, cfg.Stress.Duration)
	assert.Equal(t, Default().Stress.HoldMax, cfg.Stress.HoldMax)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	err := Load(filepath.Join(dir, "missing.yaml"), Default())
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pool: [unterminated"), 0o600))
	err = Load(bad, Default())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	invalidCfg := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalidCfg, []byte("pool:\n  capacity: 0\n"), 0o600))
	_, err = LoadFile(invalidCfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("SP_A", "x")
	assert.Equal(t, "x-x", substituteEnvVars("${SP_A}-${SP_A}"))
	assert.Equal(t, "-", substituteEnvVars("${SP_UNSET_VAR}-"))
	assert.Equal(t, "${open", substituteEnvVars("${open"))
}

func TestLogConfig_Logger(t *testing.T) {
	l := LogConfig{Level: "debug", Encoding: "json", OutputPaths: []string{"stderr"}}.Logger()
	assert.Equal(t, "debug", l.Level)
	assert.Equal(t, []string{"stderr"}, l.OutputPaths)
}
