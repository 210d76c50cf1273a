package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/config"
	"github.com/BarkinBalci/event-sourcing-service/internal/delivery"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
	"github.com/BarkinBalci/event-sourcing-service/internal/projection"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository/memory"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository/sqlstore"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
	"github.com/BarkinBalci/event-sourcing-service/internal/subscription"
)

func testConfig() *config.Config {
	return &config.Config{
		Service: config.Service{Name: "event-sourcing-service", Environment: "test", EmbeddedWorkers: true},
		Storage: config.Storage{Driver: "memory"},
		Queue:   config.Queue{Backend: "memory", Capacity: 100},
		Worker: config.Worker{
			Count:               2,
			PollTimeout:         20 * time.Millisecond,
			ProcessorTimeout:    time.Second,
			MaxRetries:          3,
			RetryBatchSize:      100,
			RetryInterval:       time.Hour,
			PendingGrace:        time.Minute,
			ProcessingLease:     time.Minute,
			SubscriptionRefresh: 20 * time.Millisecond,
		},
		Delivery: config.Delivery{
			Timeout:     time.Second,
			Workers:     1,
			BufferSize:  10,
			RateLimit:   100,
			RateBurst:   10,
			MaxAttempts: 1,
		},
	}
}

func TestNew_IngestToDeliveryAndProjection(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	received := make(chan delivery.Body, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body delivery.Body
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			received <- body
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	_, err = a.Subscriptions.Create(ctx, &dto.CreateSubscriptionRequest{
		EventTypes: []string{"order.created"},
		Target:     server.URL,
	})
	require.NoError(t, err)

	projection, err := a.Projections.Create(ctx, "order", "42")
	require.NoError(t, err)
	assert.Equal(t, 0, projection.Version)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- a.RunWorkers(runCtx)
	}()

	eventID, err := a.Events.Ingest(ctx, &dto.IngestEventRequest{
		EventType:  "order.created",
		Source:     "backend",
		EntityType: "order",
		EntityID:   "42",
		Payload:    map[string]any{"total": 10},
	})
	require.NoError(t, err)

	select {
	case body := <-received:
		assert.Equal(t, eventID, body.Event.EventID)
		assert.False(t, body.Replay)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not called")
	}

	require.Eventually(t, func() bool {
		p, err := a.Projections.Get(ctx, "order:42")
		return err == nil && p.Version == 1
	}, 5*time.Second, 10*time.Millisecond)

	event, err := a.Events.GetEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, event.Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestProjectionCache(t *testing.T) {
	embedded := testConfig()
	a := &App{Config: embedded, log: zap.NewNop()}
	cache, err := a.projectionCache(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &projection.MemoryCache{}, cache)

	split := testConfig()
	split.Service.EmbeddedWorkers = false
	a = &App{Config: split, log: zap.NewNop()}
	cache, err = a.projectionCache(context.Background())
	require.NoError(t, err)
	assert.IsType(t, projection.NopCache{}, cache)
}

func TestRunWorkers_PicksUpSubscriptionsFromOtherProcesses(t *testing.T) {
	ctx := context.Background()

	worker, err := New(ctx, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer worker.Close()

	// A second process over the same store, e.g. the API in a split deployment.
	api := subscription.NewService(worker.Store, worker.Delivery, signal.Nop{}, zap.NewNop())

	event := &domain.Event{EventID: "evt-1", EventType: "order.created", Source: domain.SourceBackend, Category: domain.CategoryOrder}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- worker.RunWorkers(runCtx)
	}()

	sub, err := api.Create(ctx, &dto.CreateSubscriptionRequest{
		EventTypes: []string{"order.created"},
		Target:     "http://hooks.example.com",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(worker.Subscriptions.Match(event)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = api.Disable(ctx, sub.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(worker.Subscriptions.Match(event)) == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestOpenStore_Memory(t *testing.T) {
	store, err := OpenStore(context.Background(), config.Storage{Driver: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
}

func TestOpenStore_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, config.Storage{
		Driver:      "sqlite",
		DSN:         ":memory:",
		AutoMigrate: true,
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &sqlstore.Store{}, store)
	assert.NoError(t, store.Ping(ctx))
}

func TestNewPublisher_DefaultsToLog(t *testing.T) {
	publisher, err := NewPublisher(config.NATS{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &signal.LogPublisher{}, publisher)
}

func TestClose_ReverseOrder(t *testing.T) {
	a := &App{log: zap.NewNop()}
	var order []string
	a.onClose("first", func() error { order = append(order, "first"); return nil })
	a.onClose("second", func() error { order = append(order, "second"); return nil })

	require.NoError(t, a.Close())
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, a.Close())
}
