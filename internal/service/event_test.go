package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository/memory"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal/signaltest"
)

// MockEnqueuer is a mock implementation of Enqueuer
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type failingAppendStore struct {
	*memory.Store
	err error
}

func (f *failingAppendStore) Append(ctx context.Context, event *domain.Event) (string, error) {
	return "", f.err
}

func newTestService(t *testing.T) (*EventService, *memory.Store, *MockEnqueuer, *signaltest.Recorder) {
	t.Helper()
	store := memory.NewStore()
	q := new(MockEnqueuer)
	rec := &signaltest.Recorder{}
	return NewEventService(store, q, rec, metrics.New(), zap.NewNop()), store, q, rec
}

func TestEventService_Ingest_Success(t *testing.T) {
	svc, store, q, rec := newTestService(t)
	ctx := context.Background()

	q.On("Enqueue", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	id, err := svc.Ingest(ctx, &dto.IngestEventRequest{
		EventType:  "order.created",
		Source:     "backend",
		EntityType: "order",
		EntityID:   "123",
		UserID:     "user_1",
		Payload:    map[string]any{"total": 12.5},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	event, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryOrder, event.Category)
	assert.Equal(t, domain.StatusPending, event.Status)
	assert.Equal(t, 1, event.Version)

	q.AssertCalled(t, "Enqueue", mock.Anything, id)
	require.Equal(t, 1, rec.Count(signal.TypeStored))
	assert.Equal(t, id, rec.Signals()[0].Subject)
}

func TestEventService_Ingest_ValidationRejectsBeforePersistence(t *testing.T) {
	tests := []struct {
		name string
		req  *dto.IngestEventRequest
	}{
		{name: "nil request", req: nil},
		{name: "empty event type", req: &dto.IngestEventRequest{EventType: "  ", Source: "backend"}},
		{name: "missing source", req: &dto.IngestEventRequest{EventType: "x"}},
		{name: "unknown source", req: &dto.IngestEventRequest{EventType: "x", Source: "mainframe"}},
		{name: "unknown category", req: &dto.IngestEventRequest{EventType: "x", Source: "backend", Category: "misc"}},
		{name: "half entity", req: &dto.IngestEventRequest{EventType: "x", Source: "backend", EntityType: "order"}},
		{name: "future timestamp", req: &dto.IngestEventRequest{EventType: "x", Source: "backend", Timestamp: time.Now().Add(time.Hour).Unix()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, q, rec := newTestService(t)

			_, err := svc.Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))

			result, qerr := store.Query(context.Background(), repository.EventFilter{}, repository.Page{Limit: 10})
			require.NoError(t, qerr)
			assert.Zero(t, result.Total)
			q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
			assert.Empty(t, rec.Signals())
		})
	}
}

func TestEventService_Ingest_EnqueueFailureIsNotAnError(t *testing.T) {
	svc, store, q, rec := newTestService(t)
	ctx := context.Background()

	q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("queue unavailable"))

	id, err := svc.Ingest(ctx, &dto.IngestEventRequest{EventType: "task.run", Source: "scheduled"})
	require.NoError(t, err)

	event, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, event.Status)
	assert.Equal(t, domain.CategoryTask, event.Category)
	assert.Equal(t, 1, rec.Count(signal.TypeStored))
}

func TestEventService_Ingest_StorageFailurePropagates(t *testing.T) {
	q := new(MockEnqueuer)
	rec := &signaltest.Recorder{}
	storeErr := apperrors.Infrastructure("failed to append event", errors.New("connection refused"))
	svc := NewEventService(&failingAppendStore{Store: memory.NewStore(), err: storeErr}, q, rec, metrics.New(), zap.NewNop())

	_, err := svc.Ingest(context.Background(), &dto.IngestEventRequest{EventType: "x", Source: "system"})
	assert.True(t, errors.Is(err, apperrors.ErrInfrastructure))
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	assert.Empty(t, rec.Signals())
}

func TestEventService_Ingest_ExplicitCategoryAndTimestamp(t *testing.T) {
	svc, store, q, _ := newTestService(t)
	ctx := context.Background()
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := svc.Ingest(ctx, &dto.IngestEventRequest{
		EventType: "button.click",
		Source:    "frontend",
		Category:  "form_submit",
		Timestamp: ts.Unix(),
	})
	require.NoError(t, err)

	event, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryFormSubmit, event.Category)
	assert.True(t, ts.Equal(event.CreatedAt))
	assert.Equal(t, 0, event.Version)
}

func TestEventService_IngestBulk(t *testing.T) {
	svc, _, q, _ := newTestService(t)
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	ids, errs := svc.IngestBulk(context.Background(), []dto.IngestEventRequest{
		{EventType: "page_view", Source: "frontend"},
		{EventType: "", Source: "frontend"},
		{EventType: "user.signup", Source: "backend"},
	})

	assert.Len(t, ids, 2)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "event 1:")
}

// One order event, queried by entity, has category order and status pending
func TestEventService_QueryEvents_SingleOrder(t *testing.T) {
	svc, _, q, _ := newTestService(t)
	ctx := context.Background()
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	id, err := svc.Ingest(ctx, &dto.IngestEventRequest{
		EventType:  "order.created",
		Source:     "backend",
		EntityType: "order",
		EntityID:   "123",
	})
	require.NoError(t, err)

	resp, err := svc.QueryEvents(ctx, &dto.QueryEventsRequest{EntityType: "order", EntityID: "123"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, id, resp.Items[0].EventID)
	assert.Equal(t, domain.CategoryOrder, resp.Items[0].Category)
	assert.Equal(t, domain.StatusPending, resp.Items[0].Status)
	assert.Equal(t, 100, resp.Limit)
	assert.False(t, resp.HasMore)
}

func TestEventService_QueryEvents_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	zero := 0
	over := 1001
	start := time.Now()
	end := start.Add(-time.Hour)

	for _, req := range []*dto.QueryEventsRequest{
		{Limit: &zero},
		{Limit: &over},
		{Offset: -1},
		{Source: "mainframe"},
		{Status: "done"},
		{StartTime: &start, EndTime: &end},
	} {
		_, err := svc.QueryEvents(ctx, req)
		assert.True(t, errors.Is(err, apperrors.ErrValidation), "request %+v", req)
	}
}

func TestEventService_GetStream(t *testing.T) {
	svc, _, q, _ := newTestService(t)
	ctx := context.Background()
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	for _, eventType := range []string{"user.created", "user.updated"} {
		_, err := svc.Ingest(ctx, &dto.IngestEventRequest{EventType: eventType, Source: "backend", EntityType: "user", EntityID: "7"})
		require.NoError(t, err)
	}

	stream, err := svc.GetStream(ctx, "user:7", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stream.Version)
	require.Len(t, stream.Events, 2)
	assert.Equal(t, "user.created", stream.Events[0].EventType)

	_, err = svc.GetStream(ctx, "user:7", -1)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	_, err = svc.GetStream(ctx, "user", 0)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	_, err = svc.GetStream(ctx, "user:8", 0)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestEventService_GetEvent_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GetEvent(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = svc.GetResults(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
