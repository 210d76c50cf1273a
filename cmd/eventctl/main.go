// Command eventctl runs operator tasks directly against the event store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/app"
	"github.com/BarkinBalci/event-sourcing-service/internal/config"
	"github.com/BarkinBalci/event-sourcing-service/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "eventctl",
		Short: "Operate the event sourcing service",
		Long: `eventctl runs maintenance tasks against the configured event store.

It reads the same environment configuration as the API and worker.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCmd(),
		newRetryCmd(),
		newRequeueCmd(),
		newReplayCmd(),
		newRebuildCmd(),
		newArchiveCmd(),
	)
	return rootCmd
}

// setup loads configuration and a logger for one command run
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Service.Environment, cfg.Service.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// withApp wires the service, runs fn and closes everything afterwards
func withApp(cmd *cobra.Command, configure func(*config.Config), fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if configure != nil {
		configure(cfg)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
