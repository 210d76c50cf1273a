package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := Open(ctx, DriverSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newEvent(eventType, entityType, entityID string) *domain.Event {
	return &domain.Event{
		EventType:  eventType,
		Source:     domain.SourceBackend,
		Category:   domain.CategoryOrder,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    map[string]any{"amount": 10},
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", zap.NewNop())
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg, _ := DialectFor(DriverPostgres)
	lite, _ := DialectFor(DriverSQLite)

	query := `SELECT * FROM events WHERE a = ? AND b = ?`
	assert.Equal(t, `SELECT * FROM events WHERE a = $1 AND b = $2`, New(nil, pg, zap.NewNop()).rebind(query))
	assert.Equal(t, query, New(nil, lite, zap.NewNop()).rebind(query))
}

func TestStore_AppendAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := newEvent("order.created", "order", "123")
	event.Metadata = map[string]any{"ip": "10.0.0.1"}
	id, err := store.Append(ctx, event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "order.created", got.EventType)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, domain.DefaultSchemaVersion, got.SchemaVersion)
	assert.Equal(t, float64(10), got.Payload["amount"])
	assert.Equal(t, "10.0.0.1", got.Metadata["ip"])
	assert.Empty(t, got.Processors)
	assert.Nil(t, got.ProcessedAt)
	assert.Positive(t, got.Sequence)
}

func TestStore_Append_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, newEvent("", "", ""))
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	event := newEvent("a", "", "")
	event.EventID = "fixed"
	_, err = store.Append(ctx, event)
	require.NoError(t, err)

	dup := newEvent("a", "", "")
	dup.EventID = "fixed"
	_, err = store.Append(ctx, dup)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestStore_GetStream(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, newEvent(fmt.Sprintf("order.step%d", i), "order", "123"))
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, newEvent("order.created", "order", "999"))
	require.NoError(t, err)

	stream, err := store.GetStream(ctx, "order:123", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, stream.Version)
	require.Len(t, stream.Events, 3)
	for i, event := range stream.Events {
		assert.Equal(t, i+1, event.Version)
		assert.Equal(t, fmt.Sprintf("order.step%d", i), event.EventType)
	}

	tail, err := store.GetStream(ctx, "order:123", 2)
	require.NoError(t, err)
	require.Len(t, tail.Events, 1)
	assert.Equal(t, 3, tail.Events[0].Version)

	_, err = store.GetStream(ctx, "order:missing", 0)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = store.GetStream(ctx, "no-separator", 0)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestStore_ClaimAndMark(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, newEvent("order.created", "order", "1"))
	require.NoError(t, err)

	ok, err := store.ClaimAndMark(ctx, id, repository.Transition{From: domain.StatusPending, To: domain.StatusProcessing})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ClaimAndMark(ctx, id, repository.Transition{From: domain.StatusPending, To: domain.StatusProcessing})
	require.NoError(t, err)
	assert.False(t, ok)

	msg := "boom"
	ok, err = store.ClaimAndMark(ctx, id, repository.Transition{
		From:         domain.StatusProcessing,
		To:           domain.StatusFailed,
		Processors:   []string{"logger", "webhook"},
		ErrorMessage: &msg,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ClaimAndMark(ctx, id, repository.Transition{
		From:           domain.StatusFailed,
		To:             domain.StatusPending,
		IncrementRetry: true,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.Equal(t, []string{"logger", "webhook"}, got.Processors)
	assert.Equal(t, "order.created", got.EventType)
	assert.Equal(t, 1, got.Version)

	_, err = store.ClaimAndMark(ctx, "missing", repository.Transition{From: domain.StatusPending, To: domain.StatusProcessing})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStore_Query(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := newEvent("order.created", "order", fmt.Sprintf("%d", i))
		event.UserID = "u1"
		event.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Append(ctx, event)
		require.NoError(t, err)
	}
	other := newEvent("page.view", "", "")
	other.UserID = "u2"
	other.Source = domain.SourceFrontend
	other.Category = domain.CategoryPageView
	_, err := store.Append(ctx, other)
	require.NoError(t, err)

	result, err := store.Query(ctx, repository.EventFilter{UserID: "u1"}, repository.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.True(t, result.HasMore)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "4", result.Items[0].EntityID)
	assert.Equal(t, "3", result.Items[1].EntityID)

	last, err := store.Query(ctx, repository.EventFilter{UserID: "u1"}, repository.Page{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.False(t, last.HasMore)
	require.Len(t, last.Items, 1)
	assert.Equal(t, "0", last.Items[0].EntityID)

	start := base.Add(time.Minute)
	end := base.Add(3 * time.Minute)
	ranged, err := store.Query(ctx, repository.EventFilter{StartTime: &start, EndTime: &end}, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, ranged.Total)

	bySource, err := store.Query(ctx, repository.EventFilter{Source: domain.SourceFrontend}, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, bySource.Total)

	_, err = store.Query(ctx, repository.EventFilter{}, repository.Page{Limit: 1001})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestStore_ListRetryableAndByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 3)
	for i := range ids {
		id, err := store.Append(ctx, newEvent("a", "", ""))
		require.NoError(t, err)
		ids[i] = id
		_, err = store.ClaimAndMark(ctx, id, repository.Transition{From: domain.StatusPending, To: domain.StatusFailed})
		require.NoError(t, err)
	}

	// exhaust the first event's retries
	for i := 0; i < 3; i++ {
		_, err := store.ClaimAndMark(ctx, ids[0], repository.Transition{From: domain.StatusFailed, To: domain.StatusPending, IncrementRetry: true})
		require.NoError(t, err)
		_, err = store.ClaimAndMark(ctx, ids[0], repository.Transition{From: domain.StatusPending, To: domain.StatusFailed})
		require.NoError(t, err)
	}

	retryable, err := store.ListRetryable(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 2)
	assert.Equal(t, ids[1], retryable[0].EventID)
	assert.Equal(t, ids[2], retryable[1].EventID)

	limited, err := store.ListRetryable(ctx, 3, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	failed, err := store.ListByStatus(ctx, domain.StatusFailed, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, failed, 3)

	none, err := store.ListByStatus(ctx, domain.StatusFailed, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ListByTimeRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		event := newEvent("a", "", "")
		event.CreatedAt = at
		id, err := store.Append(ctx, event)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	outside := newEvent("a", "", "")
	outside.CreatedAt = at.Add(time.Hour)
	_, err := store.Append(ctx, outside)
	require.NoError(t, err)

	events, err := store.ListByTimeRange(ctx, at, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, ids[i], event.EventID)
	}
}

func TestStore_Results(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, newEvent("a", "", ""))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.SaveResults(ctx, id, []domain.ProcessingResult{
		{Processor: "logger", Status: domain.ResultSuccess, Duration: 3 * time.Millisecond, CreatedAt: now},
		{Processor: "webhook", Status: domain.ResultFailed, ErrorMessage: "timeout", CreatedAt: now},
	}))

	results, err := store.GetResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "logger", results[0].Processor)
	assert.Equal(t, 3*time.Millisecond, results[0].Duration)
	assert.Equal(t, domain.ResultFailed, results[1].Status)
	assert.Equal(t, "timeout", results[1].ErrorMessage)
	assert.Equal(t, id, results[1].EventID)

	err = store.SaveResults(ctx, "missing", nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStore_Subscriptions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	sub := &domain.Subscription{
		ID:           "sub-1",
		Name:         "orders",
		EventTypes:   []string{"order.created"},
		EventSources: []domain.Source{domain.SourceBackend},
		Target:       "http://example.test/hook",
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.SaveSubscription(ctx, sub))

	got, err := store.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, sub.EventTypes, got.EventTypes)
	assert.Equal(t, sub.EventSources, got.EventSources)
	assert.Empty(t, got.EventCategories)
	assert.True(t, got.Enabled)
	assert.True(t, now.Equal(got.CreatedAt))

	disabled, err := store.SetSubscriptionEnabled(ctx, "sub-1", false, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	all, err := store.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = store.SetSubscriptionEnabled(ctx, "missing", true, now)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = store.GetSubscription(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStore_Projections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	projection := &domain.Projection{
		ID:         "order:1",
		EntityType: "order",
		EntityID:   "1",
		State:      map[string]map[string]any{"order.created": {"total": "12.50"}},
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.SaveProjection(ctx, projection))

	projection.Version = 2
	projection.State["order.paid"] = map[string]any{"paid": true}
	require.NoError(t, store.SaveProjection(ctx, projection))

	got, err := store.GetProjection(ctx, "order:1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "12.50", got.State["order.created"]["total"])
	assert.Equal(t, true, got.State["order.paid"]["paid"])

	_, err = store.GetProjection(ctx, "order:2")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
