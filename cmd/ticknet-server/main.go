// Command ticknet-server runs the dedicated authoritative server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/andersfylling/ticknet/internal/logging"
	"github.com/andersfylling/ticknet/internal/metrics"
	"github.com/andersfylling/ticknet/internal/server"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := server.DefaultConfig()
	logLevel := "info"
	metricsAddr := ""

	cmd := &cobra.Command{
		Use:           "ticknet-server",
		Short:         "Authoritative fixed-timestep game server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg, logLevel, metricsAddr)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Port, "port", cfg.Port, "UDP port to listen on")
	flags.IntVar(&cfg.MaxPeers, "max-peers", cfg.MaxPeers, "maximum concurrent peers")
	flags.IntVar(&cfg.SimHz, "sim-hz", cfg.SimHz, "simulation ticks per second")
	flags.IntVar(&cfg.NetHz, "net-hz", cfg.NetHz, "snapshot emissions per second")
	flags.IntVar(&cfg.InputDelayTicks, "input-delay", cfg.InputDelayTicks, "sim ticks between receive and apply")
	flags.IntVar(&cfg.RingCapacity, "ring-capacity", cfg.RingCapacity, "input ring slot count")
	flags.StringVar(&logLevel, "log-level", logLevel, "trace, debug, info, warn or error")
	flags.StringVar(&metricsAddr, "metrics-addr", metricsAddr, "address for the prometheus endpoint (disabled when empty)")

	return cmd
}

func run(ctx context.Context, cfg server.Config, logLevel, metricsAddr string) error {
	log, err := logging.New(logging.Console(os.Stderr), logLevel)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	srv, err := server.NewServer(cfg, m, log)
	if err != nil {
		log.Error().Err(err).Msg("server startup failed")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var metricsSrv *http.Server
	if metricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", metricsAddr).Msg("serving metrics")
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(srv.Run)

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		srv.Stop()
		if metricsSrv != nil {
			metricsSrv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("exited with error")
		return err
	}
	log.Info().Msg("clean shutdown")
	return nil
}
