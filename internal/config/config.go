// Package config loads galcoord settings from an optional YAML file and
// GALCOORD_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/star/galcoord/internal/auth"
	"github.com/star/galcoord/internal/coord"
)

const (
	envPrefix = "GALCOORD"

	defaultMaxPoints       = 100000
	defaultMaxBatchesPerIP = 4
)

// Config is the full runtime configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Auth    auth.Config   `mapstructure:"auth"`
	Log     LogConfig     `mapstructure:"log"`
	Workers int           `mapstructure:"workers"`
	Check   CheckConfig   `mapstructure:"check"`
	ProlSph ProlSphConfig `mapstructure:"prolsph"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// TrustProxy makes the server read the client address from
	// X-Forwarded-For / X-Real-IP. Only enable behind a trusted proxy.
	TrustProxy bool `mapstructure:"trust_proxy"`
	// MaxPoints caps the number of points in one trajectory request.
	MaxPoints int `mapstructure:"max_points"`
	// MaxBatchesPerIP caps concurrent trajectory requests per client.
	MaxBatchesPerIP int `mapstructure:"max_batches_per_ip"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CheckConfig controls the startup self-check and the /api/v1/check route.
type CheckConfig struct {
	Tolerance float64 `mapstructure:"tolerance"`
	OnStartup bool    `mapstructure:"on_startup"`
}

// ProlSphConfig is the default prolate spheroidal shape used when a
// request does not name one.
type ProlSphConfig struct {
	Alpha float64 `mapstructure:"alpha"`
	Gamma float64 `mapstructure:"gamma"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key needs a default so that Unmarshal sees env overrides.
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.max_points", defaultMaxPoints)
	v.SetDefault("http.max_batches_per_ip", defaultMaxBatchesPerIP)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("check.tolerance", 1e-10)
	v.SetDefault("check.on_startup", true)
	v.SetDefault("prolsph.alpha", -2.56)
	v.SetDefault("prolsph.gamma", -1.0)
	return v
}

// Load reads the YAML file at path, then applies environment overrides.
// An empty path behaves like LoadFromEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", path, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds the configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values that a YAML file may have set explicitly.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.MaxPoints == 0 {
		c.HTTP.MaxPoints = defaultMaxPoints
	}
	if c.HTTP.MaxBatchesPerIP == 0 {
		c.HTTP.MaxBatchesPerIP = defaultMaxBatchesPerIP
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Check.Tolerance == 0 {
		c.Check.Tolerance = 1e-10
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d: %w", c.Workers, coord.ErrInvalidConfig)
	}
	if c.HTTP.MaxPoints < 1 || c.HTTP.MaxBatchesPerIP < 1 {
		return fmt.Errorf("config: http.max_points and http.max_batches_per_ip must be >= 1: %w", coord.ErrInvalidConfig)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("config: %v: %w", err, coord.ErrInvalidConfig)
	}
	if !(c.Check.Tolerance > 0) {
		return fmt.Errorf("config: check.tolerance must be > 0, got %g: %w", c.Check.Tolerance, coord.ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q: %w", c.Log.Level, coord.ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log.format %q: %w", c.Log.Format, coord.ErrInvalidConfig)
	}
	if _, err := coord.NewShape(c.ProlSph.Alpha, c.ProlSph.Gamma); err != nil {
		return fmt.Errorf("config: prolsph: %w", err)
	}
	return nil
}

// Shape returns the configured default prolate spheroidal shape.
func (c *Config) Shape() coord.Shape {
	return coord.Shape{Alpha: c.ProlSph.Alpha, Gamma: c.ProlSph.Gamma}
}
