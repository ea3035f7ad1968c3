package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/galcoord/internal/coord"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "galcoord.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.HTTP.TrustProxy)
	assert.Equal(t, 100000, cfg.HTTP.MaxPoints)
	assert.Equal(t, 4, cfg.HTTP.MaxBatchesPerIP)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, 1e-10, cfg.Check.Tolerance)
	assert.True(t, cfg.Check.OnStartup)
	assert.Equal(t, coord.Shape{Alpha: -2.56, Gamma: -1}, cfg.Shape())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("GALCOORD_HTTP_ADDR", ":9090")
	t.Setenv("GALCOORD_WORKERS", "3")
	t.Setenv("GALCOORD_PROLSPH_ALPHA", "-5")
	t.Setenv("GALCOORD_AUTH_ENABLED", "true")
	t.Setenv("GALCOORD_AUTH_TOKEN", "s3cret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, -5.0, cfg.ProlSph.Alpha)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: "127.0.0.1:7000"
log:
  level: debug
  format: text
workers: 2
check:
  tolerance: 1.0e-9
  on_startup: false
prolsph:
  alpha: -4
  gamma: -2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 1e-9, cfg.Check.Tolerance)
	assert.False(t, cfg.Check.OnStartup)
	assert.Equal(t, coord.Shape{Alpha: -4, Gamma: -2}, cfg.Shape())
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := writeConfig(t, "workers: 2\n")
	t.Setenv("GALCOORD_WORKERS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{Workers: 1}
		c.Check.Tolerance = 1e-10
		c.ProlSph = ProlSphConfig{Alpha: -2.56, Gamma: -1}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"zero tolerance", func(c *Config) { c.Check.Tolerance = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"auth without token", func(c *Config) { c.Auth.Enabled = true }},
		{"negative max points", func(c *Config) { c.HTTP.MaxPoints = -1 }},
		{"alpha above gamma", func(c *Config) { c.ProlSph = ProlSphConfig{Alpha: -1, Gamma: -2} }},
		{"positive gamma", func(c *Config) { c.ProlSph = ProlSphConfig{Alpha: -1, Gamma: 1} }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), coord.ErrInvalidConfig)
		})
	}
}

func TestLoad_InvalidShapeRejected(t *testing.T) {
	path := writeConfig(t, "prolsph:\n  alpha: 1\n  gamma: 2\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, coord.ErrInvalidConfig)
}
