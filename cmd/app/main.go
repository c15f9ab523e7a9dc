// Reconfigure: edit the parameters of running nodes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"reconfigure-gui/internal/config"
	"reconfigure-gui/internal/gui"
	"reconfigure-gui/internal/logging"
	"reconfigure-gui/internal/metrics"
	"reconfigure-gui/internal/tracing"
	"reconfigure-gui/internal/transport"
)

const (
	AppName    = "Reconfigure"
	AppID      = "io.reconfigure.gui"
	AppVersion = "1.0.0"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg, loadErr := config.Load()

	cmd := &cobra.Command{
		Use:           "reconfigure",
		Short:         "Edit the parameters of running nodes",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if loadErr != nil {
				return fmt.Errorf("load config: %w", loadErr)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(cfg)
		},
	}
	cfg.BindFlags(cmd.Flags())
	return cmd
}

func run(cfg config.Config) error {
	logger := logging.New(cfg.Debug)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": cfg.Debug,
		"registry":   cfg.RegistryURL,
		"tracing":    cfg.Tracing,
	}).Info("Starting Reconfigure")

	shutdownTracing, err := tracing.Setup(cfg.Tracing, AppID, os.Stderr)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("Flushing traces failed")
		}
	}()

	reg := prometheus.NewRegistry()
	panelMetrics := metrics.NewPanel(reg)
	stopMetrics := serveMetrics(cfg.MetricsAddr, reg, logger)
	defer stopMetrics()

	httpClient := &http.Client{Timeout: cfg.ConnectTimeout}
	registry := transport.NewRegistry(cfg.RegistryURL, httpClient)
	dialer, err := transport.NewDialer(registry, httpClient, logger)
	if err != nil {
		return fmt.Errorf("create dialer: %w", err)
	}

	fyneApp := app.NewWithID(AppID)
	fyneApp.SetIcon(theme.SettingsIcon())
	fyneApp.Settings().SetTheme(theme.DefaultTheme())

	mainApp := gui.NewApplication(fyneApp, cfg, registry, dialer, logger, panelMetrics)
	mainApp.ShowAndRun()

	logger.Info("Application shutting down gracefully")
	return nil
}

// serveMetrics exposes reg on addr until the returned func is called. An
// empty addr disables it.
func serveMetrics(addr string, reg *prometheus.Registry, logger *logrus.Logger) func() {
	if addr == "" {
		return func() {}
	}

	srv := &http.Server{Addr: addr, Handler: metrics.Router(reg), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.WithField("addr", addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
