// paramd runs the node registry or a demo parameter node.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reconfigure-gui/internal/config"
	"reconfigure-gui/internal/logging"
	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/server"
	"reconfigure-gui/internal/tracing"
	"reconfigure-gui/internal/transport"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options carries the settings shared by every subcommand.
type options struct {
	cfg      config.Config
	logger   *logrus.Logger
	shutdown tracing.Shutdown
}

func newRootCommand() *cobra.Command {
	cfg, loadErr := config.Load()
	opts := &options{cfg: cfg}

	root := &cobra.Command{
		Use:           "paramd",
		Short:         "Node registry and parameter node daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if loadErr != nil {
				return fmt.Errorf("load config: %w", loadErr)
			}
			opts.logger = logging.New(opts.cfg.Debug)
			shutdown, err := tracing.Setup(opts.cfg.Tracing, "paramd", os.Stderr)
			if err != nil {
				return fmt.Errorf("set up tracing: %w", err)
			}
			opts.shutdown = shutdown
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if opts.shutdown == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return opts.shutdown(ctx)
		},
	}
	root.PersistentFlags().BoolVar(&opts.cfg.Debug, "debug", cfg.Debug, "enable debug mode with verbose logging")
	root.PersistentFlags().StringVar(&opts.cfg.Tracing, "tracing", cfg.Tracing, "trace exporter: none or stdout")

	root.AddCommand(newRegistryCommand(opts), newNodeCommand(opts))
	return root
}

func newRegistryCommand(opts *options) *cobra.Command {
	var (
		listen string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Run the node registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger
			reg := prometheus.NewRegistry()
			registry := server.NewRegistry(ttl, logger, reg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.WithFields(logrus.Fields{"listen": listen, "ttl": ttl}).Info("Starting registry")
			return serve(ctx, listen, registry.Handler(), logger, nil)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", registryListenAddr(opts.cfg.RegistryURL), "address to listen on")
	cmd.Flags().DurationVar(&ttl, "ttl", server.DefaultTTL, "registration lifetime without refresh")
	return cmd
}

func newNodeCommand(opts *options) *cobra.Command {
	var (
		name      string
		listen    string
		advertise string
		registry  string
		groupFile string
	)

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a parameter node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger

			desc := server.DemoGroup()
			if groupFile != "" {
				var err error
				if desc, err = server.LoadGroup(groupFile); err != nil {
					return err
				}
			}

			node, err := server.NewNode(name, desc, logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", listen, err)
			}
			if advertise == "" {
				advertise = "http://" + ln.Addr().String()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.WithFields(logrus.Fields{
				"node":     name,
				"instance": node.Instance(),
				"url":      advertise,
				"params":   paramNames(desc),
			}).Info("Starting node")

			info := transport.NodeInfo{Name: name, URL: advertise}
			return serve(ctx, listen, node.Handler(), logger, ln, func(ctx context.Context) error {
				return server.Heartbeat(ctx, nil, registry, info, server.DefaultTTL/3, logger)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "/demo", "node name, starting with /")
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:0", "address to listen on")
	cmd.Flags().StringVar(&advertise, "advertise", "", "URL announced to the registry (default: the listen address)")
	cmd.Flags().StringVar(&registry, "registry", opts.cfg.RegistryURL, "node registry URL")
	cmd.Flags().StringVar(&groupFile, "group", "", "JSON parameter group file (default: built-in demo group)")
	return cmd
}

// serve runs handler until ctx ends, together with any extra tasks. ln may
// be nil, in which case addr is listened on.
func serve(ctx context.Context, addr string, handler http.Handler, logger *logrus.Logger, ln net.Listener, tasks ...func(context.Context) error) error {
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", ln.Addr().String()).Info("Listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	for _, task := range tasks {
		g.Go(func() error { return task(ctx) })
	}

	return g.Wait()
}

// registryListenAddr returns the host:port of registryURL, falling back to
// the built-in registry address.
func registryListenAddr(registryURL string) string {
	if u, err := url.Parse(registryURL); err == nil && u.Host != "" {
		return u.Host
	}
	u, _ := url.Parse(config.Default().RegistryURL)
	return u.Host
}

func paramNames(desc params.GroupDescription) []string {
	names := make([]string, 0, len(desc.Parameters))
	for _, p := range desc.Parameters {
		names = append(names, p.Name)
	}
	return names
}
