package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BarkinBalci/event-sourcing-service/internal/app"
	"github.com/BarkinBalci/event-sourcing-service/internal/config"
	"github.com/BarkinBalci/event-sourcing-service/internal/consumer"
	"github.com/BarkinBalci/event-sourcing-service/internal/replay"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the event store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cfg.Storage.AutoMigrate = true
			store, err := app.OpenStore(cmd.Context(), cfg.Storage, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready for %s store\n", cfg.Storage.Driver)
			return nil
		},
	}
}

func newRetryCmd() *cobra.Command {
	var maxRetries, batchSize int

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Reset failed events below the retry bound and queue them again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				retried, err := a.Retrier.RetryFailed(ctx, maxRetries, batchSize)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"retried": retried})
			})
		},
	}

	cmd.Flags().IntVar(&maxRetries, "max-retries", consumer.DefaultMaxRetries, "Retry bound; events retried this many times stay failed")
	cmd.Flags().IntVar(&batchSize, "batch-size", repository.DefaultLimit, "Maximum events to reset")
	return cmd
}

func newRequeueCmd() *cobra.Command {
	var (
		grace time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Queue pending events that were never picked up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				requeued, err := a.Retrier.RequeuePending(ctx, grace, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"requeued": requeued})
			})
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", time.Minute, "Only events pending longer than this")
	cmd.Flags().IntVar(&limit, "limit", repository.DefaultLimit, "Maximum events to queue")
	return cmd
}

type replayFlags struct {
	eventIDs []string
	streamID string
	from     string
	to       string
	target   string
	dryRun   bool
}

func (f replayFlags) request() (replay.Request, error) {
	req := replay.Request{
		Selector: replay.Selector{
			EventIDs: f.eventIDs,
			StreamID: strings.TrimSpace(f.streamID),
		},
		Target: strings.TrimSpace(f.target),
		DryRun: f.dryRun,
	}

	var err error
	if req.Selector.From, err = parseTime("from", f.from); err != nil {
		return replay.Request{}, err
	}
	if req.Selector.To, err = parseTime("to", f.to); err != nil {
		return replay.Request{}, err
	}
	return req, nil
}

func parseTime(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return &t, nil
}

func newReplayCmd() *cobra.Command {
	var flags replayFlags

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Deliver historical events again",
		Long: `Select events by id list, stream or time range and deliver them again.

Without --target, each event goes to the subscriptions that match it.
With --dry-run, the selection is printed and nothing is delivered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				result, err := a.Replay.Replay(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringSliceVar(&flags.eventIDs, "event-id", nil, "Event ids to replay, in order")
	cmd.Flags().StringVar(&flags.streamID, "stream", "", "Stream id (entity_type:entity_id)")
	cmd.Flags().StringVar(&flags.from, "from", "", "RFC3339 start of the time range")
	cmd.Flags().StringVar(&flags.to, "to", "", "RFC3339 end of the time range")
	cmd.Flags().StringVar(&flags.target, "target", "", "Deliver to this URL instead of the matching subscriptions")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Only report which events would be replayed")
	cmd.MarkFlagsMutuallyExclusive("event-id", "stream", "from")
	cmd.MarkFlagsMutuallyExclusive("event-id", "stream", "to")
	cmd.MarkFlagsRequiredTogether("from", "to")
	return cmd
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <projection-id>",
		Short: "Rebuild a projection from its full stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				p, err := a.Projections.Rebuild(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Run one archive sweep into ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			enable := func(cfg *config.Config) {
				cfg.ClickHouse.Enabled = true
				cfg.Archive.Enabled = true
			}
			return withApp(cmd, enable, func(ctx context.Context, a *app.App) error {
				archived, err := a.Archiver.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"archived": archived})
			})
		},
	}
}
