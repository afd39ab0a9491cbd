// Command ticknet-client is the reference client: it emits inputs at a
// fixed cadence and reports the server's ack progress.
package main

import (
	"context"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andersfylling/ticknet/internal/client"
	"github.com/andersfylling/ticknet/internal/logging"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := client.DefaultConfig()
	logLevel := "info"
	sendPeriodMs := 16

	cmd := &cobra.Command{
		Use:           "ticknet-client",
		Short:         "Reference client for the ticknet server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.SendPeriod = time.Duration(sendPeriodMs) * time.Millisecond
			return run(cmd.Context(), cfg, logLevel)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "server host")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "server UDP port")
	flags.IntVar(&sendPeriodMs, "send-period", sendPeriodMs, "input send period in milliseconds")
	flags.StringVar(&logLevel, "log-level", logLevel, "trace, debug, info, warn or error")

	return cmd
}

func run(ctx context.Context, cfg client.Config, logLevel string) error {
	log, err := logging.New(logging.Console(os.Stderr), logLevel)
	if err != nil {
		return err
	}

	// Steer in a slow circle so snapshots show motion being applied.
	steer := func(tick uint32) (uint32, float32, float32) {
		angle := float64(tick) / 120 * 2 * math.Pi
		return 0, float32(math.Cos(angle)), float32(math.Sin(angle))
	}

	c := client.New(cfg, steer, log)
	if err := c.Connect(); err != nil {
		log.Error().Err(err).Msg("connect failed")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		log.Error().Err(err).Msg("client exited with error")
		return err
	}

	if snap, ok := c.Latest(); ok {
		log.Info().
			Uint64("server_tick", snap.ServerTick).
			Uint32("ack_applied", snap.AckApplied).
			Uint32("ack_recv", snap.AckRecv).
			Msg("disconnected")
	}
	return nil
}
