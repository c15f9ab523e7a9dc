// Package config loads panel settings from .env, the environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"reconfigure-gui/internal/tracing"
)

const envPrefix = "RECONFIGURE_"

// Config holds the settings of the panel application.
type Config struct {
	RegistryURL       string
	PollInterval      time.Duration
	ConnectTimeout    time.Duration
	ReconcileInterval time.Duration
	UpdateTimeout     time.Duration
	MetricsAddr       string
	Tracing           string
	Debug             bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		RegistryURL:       "http://127.0.0.1:11311",
		PollInterval:      100 * time.Millisecond,
		ConnectTimeout:    5 * time.Second,
		ReconcileInterval: 250 * time.Millisecond,
		UpdateTimeout:     2 * time.Second,
		Tracing:           tracing.ExporterNone,
	}
}

// Load reads an optional .env file and applies RECONFIGURE_* environment
// variables on top of the defaults. Flags bound with BindFlags override
// the result when parsed afterwards.
func Load(envFiles ...string) (Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load(envFiles...)

	cfg := Default()

	if v := env("REGISTRY_URL"); v != "" {
		cfg.RegistryURL = v
	}
	if v := env("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := env("TRACING"); v != "" {
		cfg.Tracing = v
	}

	var err error
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return cfg, err
	}
	if cfg.ConnectTimeout, err = envDuration("CONNECT_TIMEOUT", cfg.ConnectTimeout); err != nil {
		return cfg, err
	}
	if cfg.ReconcileInterval, err = envDuration("RECONCILE_INTERVAL", cfg.ReconcileInterval); err != nil {
		return cfg, err
	}
	if cfg.UpdateTimeout, err = envDuration("UPDATE_TIMEOUT", cfg.UpdateTimeout); err != nil {
		return cfg, err
	}
	if v := env("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%sDEBUG: %w", envPrefix, err)
		}
		cfg.Debug = debug
	}

	return cfg, nil
}

// BindFlags registers flags that write into cfg, using its current values as
// defaults.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.RegistryURL, "registry", cfg.RegistryURL, "node registry URL")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "node discovery poll interval")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "node connection timeout")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "remote value reconciliation interval")
	fs.DurationVar(&cfg.UpdateTimeout, "update-timeout", cfg.UpdateTimeout, "timeout of a single parameter update")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&cfg.Tracing, "tracing", cfg.Tracing, "trace exporter: none or stdout")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug mode with verbose logging")
}

// Validate rejects settings the panel cannot run with.
func (cfg Config) Validate() error {
	var errs []error
	if strings.TrimSpace(cfg.RegistryURL) == "" {
		errs = append(errs, errors.New("registry URL is required"))
	}
	for name, d := range map[string]time.Duration{
		"poll interval":      cfg.PollInterval,
		"connect timeout":    cfg.ConnectTimeout,
		"reconcile interval": cfg.ReconcileInterval,
		"update timeout":     cfg.UpdateTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if err := tracing.Validate(cfg.Tracing); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := env(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}
