// Package app builds the service components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BarkinBalci/event-sourcing-service/internal/archive"
	"github.com/BarkinBalci/event-sourcing-service/internal/archive/clickhouse"
	"github.com/BarkinBalci/event-sourcing-service/internal/config"
	"github.com/BarkinBalci/event-sourcing-service/internal/consumer"
	"github.com/BarkinBalci/event-sourcing-service/internal/delivery"
	"github.com/BarkinBalci/event-sourcing-service/internal/discovery"
	"github.com/BarkinBalci/event-sourcing-service/internal/handler"
	"github.com/BarkinBalci/event-sourcing-service/internal/logger"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/projection"
	"github.com/BarkinBalci/event-sourcing-service/internal/queue"
	"github.com/BarkinBalci/event-sourcing-service/internal/queue/sqs"
	"github.com/BarkinBalci/event-sourcing-service/internal/replay"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository/memory"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository/sqlstore"
	"github.com/BarkinBalci/event-sourcing-service/internal/service"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
	"github.com/BarkinBalci/event-sourcing-service/internal/subscription"
)

// App holds every wired component of the service
type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics

	Store    repository.Store
	Queue    queue.Queue
	Signals  *signal.Dispatcher
	Webhook  *delivery.WebhookDeliverer
	Delivery *delivery.Dispatcher

	Events        *service.EventService
	Subscriptions *subscription.Service
	Projections   *projection.Engine
	Replay        *replay.Engine
	Retrier       *consumer.Retrier
	Registry      *consumer.Registry
	Archiver      *archive.Archiver

	closers []closer
	log     *zap.Logger
}

type closer struct {
	name string
	fn   func() error
}

// New connects the backends selected by cfg and wires the engines on top of them.
// On error, whatever was opened is closed again.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		log:     log,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Store, err = OpenStore(ctx, cfg.Storage, logger.Named(log, "store")); err != nil {
		return nil, err
	}
	a.onClose("store", a.Store.Close)

	if a.Queue, err = OpenQueue(ctx, cfg, logger.Named(log, "queue")); err != nil {
		return nil, err
	}
	a.onClose("queue", a.Queue.Close)

	publisher, err := NewPublisher(cfg.NATS, logger.Named(log, "signals"))
	if err != nil {
		return nil, err
	}
	a.Signals = signal.NewDispatcher(publisher, 1024, a.Metrics, logger.Named(log, "signals"))
	a.Signals.Start()
	a.onClose("signals", func() error {
		a.Signals.Stop()
		return publisher.Close()
	})

	a.Webhook = delivery.NewWebhookDeliverer(delivery.WebhookConfig{
		Timeout:   cfg.Delivery.Timeout,
		RateLimit: cfg.Delivery.RateLimit,
		RateBurst: cfg.Delivery.RateBurst,
	}, nil, delivery.PolicyFor(cfg.Delivery.MaxAttempts, cfg.Delivery.BaseBackoff), a.Metrics, logger.Named(log, "delivery"))
	a.Delivery = delivery.NewDispatcher(a.Webhook, cfg.Delivery.BufferSize, a.Metrics, logger.Named(log, "delivery"))
	a.Delivery.Start(cfg.Delivery.Workers)
	a.onClose("delivery", func() error {
		a.Delivery.Stop()
		return nil
	})

	a.Subscriptions = subscription.NewService(a.Store, a.Delivery, a.Signals, logger.Named(log, "subscriptions"))
	if err = a.Subscriptions.LoadIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	cache, err := a.projectionCache(ctx)
	if err != nil {
		return nil, err
	}
	a.Projections = projection.NewEngine(a.Store, a.Store, cache, a.Signals, a.Metrics, logger.Named(log, "projections"))

	a.Replay = replay.NewEngine(a.Store, a.Subscriptions, a.Webhook, a.Signals, a.Metrics, logger.Named(log, "replay"))
	a.Events = service.NewEventService(a.Store, a.Queue, a.Signals, a.Metrics, logger.Named(log, "ingest"))
	a.Retrier = consumer.NewRetrier(a.Store, a.Queue, a.Metrics, logger.Named(log, "retrier"))

	a.Registry = consumer.NewRegistry()
	if err = a.Registry.Register(consumer.Registration{
		Name:      "audit-log",
		Processor: consumer.LoggingProcessor(logger.Named(log, "audit")),
	}); err != nil {
		return nil, err
	}

	if cfg.Archive.Enabled {
		if a.Archiver, err = a.archiver(ctx); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// OpenStore returns the event store selected by the storage driver
func OpenStore(ctx context.Context, cfg config.Storage, log *zap.Logger) (repository.Store, error) {
	if cfg.Driver == "memory" {
		log.Info("Using in-memory event store")
		return memory.NewStore(), nil
	}

	dsn, source := discovery.ResolveStorage(ctx, net.DefaultResolver, discovery.StorageSettings{
		Driver:   cfg.Driver,
		DSN:      cfg.DSN,
		SRVName:  cfg.SRVName,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	})
	log.Info("Resolved event store location",
		zap.String("source", string(source)),
		zap.String("dsn", discovery.Describe(dsn)))

	store, err := sqlstore.Open(ctx, cfg.Driver, dsn, log)
	if err != nil {
		return nil, err
	}
	store.SetPool(cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := store.InitSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Info("Event store schema initialized")
	}
	return store, nil
}

// OpenQueue returns the processing queue selected by the queue backend
func OpenQueue(ctx context.Context, cfg *config.Config, log *zap.Logger) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case "sqs":
		return sqs.NewClient(ctx, cfg.SQS, log)
	default:
		log.Info("Using in-memory processing queue", zap.Int("capacity", cfg.Queue.Capacity))
		return queue.NewMemoryQueue(cfg.Queue.Capacity), nil
	}
}

// NewPublisher returns the NATS publisher when a URL is configured and the log publisher otherwise
func NewPublisher(cfg config.NATS, log *zap.Logger) (signal.Publisher, error) {
	if cfg.URL == "" {
		return signal.NewLogPublisher(log), nil
	}
	return signal.NewNATSPublisher(signal.NATSConfig{
		URL:           cfg.URL,
		Name:          cfg.ClientName,
		SubjectPrefix: cfg.SubjectPrefix,
	}, log)
}

// projectionCache picks Valkey when configured. Without it, only a process that also
// runs the workers may cache in memory; split processes would serve stale projections.
func (a *App) projectionCache(ctx context.Context) (projection.Cache, error) {
	if a.Config.Valkey.Host == "" {
		if !a.Config.Service.EmbeddedWorkers {
			a.log.Info("Projection cache disabled; set VALKEY_HOST to share one across processes")
			return projection.NopCache{}, nil
		}
		return projection.NewMemoryCache(), nil
	}

	client, err := projection.NewValkeyClient(ctx, projection.ValkeyConfig{
		Host:     a.Config.Valkey.Host,
		Port:     a.Config.Valkey.Port,
		Password: a.Config.Valkey.Password,
		DB:       a.Config.Valkey.DB,
		TTL:      a.Config.Valkey.TTL,
	}, logger.Named(a.log, "valkey"))
	if err != nil {
		return nil, err
	}
	a.onClose("valkey", client.Close)

	return projection.NewValkeyCache(client, a.Config.Valkey.TTL, logger.Named(a.log, "valkey")), nil
}

func (a *App) archiver(ctx context.Context) (*archive.Archiver, error) {
	client, err := clickhouse.NewClient(ctx, &a.Config.ClickHouse, logger.Named(a.log, "clickhouse"))
	if err != nil {
		return nil, err
	}
	a.onClose("clickhouse", client.Close)

	sink := clickhouse.NewSink(client.Conn(), logger.Named(a.log, "clickhouse"))
	if err := sink.InitSchema(ctx); err != nil {
		return nil, err
	}

	return archive.NewArchiver(a.Store, sink, archive.Config{
		Retention: a.Config.Archive.Retention,
		Interval:  a.Config.Archive.Interval,
		BatchSize: a.Config.Archive.BatchSize,
	}, a.Metrics, logger.Named(a.log, "archive")), nil
}

// Handler builds the HTTP API over the wired services
func (a *App) Handler() *handler.Handler {
	return handler.NewHandler(handler.Services{
		Events:        a.Events,
		Subscriptions: a.Subscriptions,
		Projections:   a.Projections,
		Replay:        a.Replay,
		Retry:         a.Retrier,
	}, a.Metrics, logger.Named(a.log, "http"))
}

// Consumer builds the worker pool; processed events feed projections, then subscriptions
func (a *App) Consumer() *consumer.Consumer {
	return consumer.NewConsumer(consumer.Config{
		Workers:          a.Config.Worker.Count,
		PollTimeout:      a.Config.Worker.PollTimeout,
		ProcessorTimeout: a.Config.Worker.ProcessorTimeout,
	}, a.Queue, a.Store, a.Registry, a.Signals, a.Metrics, logger.Named(a.log, "consumer"),
		a.Projections, a.Subscriptions)
}

// RunSubscriptionRefresh keeps the subscription index in step with the shared store
func (a *App) RunSubscriptionRefresh(ctx context.Context) error {
	return a.Subscriptions.RunRefresh(ctx, a.Config.Worker.SubscriptionRefresh)
}

// RunWorkers runs the worker pool, the retry sweep, the subscription refresh and,
// when enabled, the archiver until ctx is cancelled
func (a *App) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	c := a.Consumer()
	g.Go(func() error {
		return c.Start(ctx)
	})
	g.Go(func() error {
		return a.Retrier.Run(ctx, consumer.RetrierConfig{
			Interval:        a.Config.Worker.RetryInterval,
			MaxRetries:      a.Config.Worker.MaxRetries,
			BatchSize:       a.Config.Worker.RetryBatchSize,
			PendingGrace:    a.Config.Worker.PendingGrace,
			ProcessingLease: a.Config.Worker.ProcessingLease,
		})
	})
	g.Go(func() error {
		return a.RunSubscriptionRefresh(ctx)
	})
	if a.Archiver != nil {
		g.Go(func() error {
			return a.Archiver.Run(ctx)
		})
	}

	return g.Wait()
}

// Close releases components in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Error("Failed to close component", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}
