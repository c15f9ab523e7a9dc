package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("RECONFIGURE_REGISTRY_URL", "http://registry:9000")
	t.Setenv("RECONFIGURE_CONNECT_TIMEOUT", "750ms")
	t.Setenv("RECONFIGURE_DEBUG", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "http://registry:9000", cfg.RegistryURL)
	assert.Equal(t, 750*time.Millisecond, cfg.ConnectTimeout)
	assert.True(t, cfg.Debug)
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.env")
	require.NoError(t, os.WriteFile(path, []byte("RECONFIGURE_POLL_INTERVAL=1s\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RECONFIGURE_POLL_INTERVAL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("RECONFIGURE_UPDATE_TIMEOUT", "soon")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "RECONFIGURE_UPDATE_TIMEOUT")
}

func TestFlagsOverride(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--registry", "http://other:1", "--reconcile-interval", "1s"}))
	assert.Equal(t, "http://other:1", cfg.RegistryURL)
	assert.Equal(t, time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.RegistryURL = " "
	cfg.PollInterval = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry URL")
	assert.Contains(t, err.Error(), "poll interval")
}

func TestTracingSetting(t *testing.T) {
	t.Setenv("RECONFIGURE_TRACING", "stdout")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "stdout", cfg.Tracing)
	assert.NoError(t, cfg.Validate())

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--tracing", "jaeger"}))
	assert.ErrorContains(t, cfg.Validate(), "jaeger")
}
