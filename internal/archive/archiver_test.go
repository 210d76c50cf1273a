package archive

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
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository/memory"
)

// MockSink is a mock implementation of Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) InsertBatch(ctx context.Context, events []*domain.Event) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func processedEvent(t *testing.T, store *memory.Store, eventType string) string {
	t.Helper()
	ctx := context.Background()
	id, err := store.Append(ctx, &domain.Event{EventType: eventType, Source: domain.SourceBackend})
	require.NoError(t, err)
	for _, step := range []repository.Transition{
		{From: domain.StatusPending, To: domain.StatusProcessing},
		{From: domain.StatusProcessing, To: domain.StatusProcessed},
	} {
		ok, err := store.ClaimAndMark(ctx, id, step)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return id
}

func newArchiver(store *memory.Store, sink Sink, batchSize int) *Archiver {
	a := NewArchiver(store, sink, Config{Retention: 24 * time.Hour, BatchSize: batchSize}, metrics.New(), zap.NewNop())
	a.now = func() time.Time { return epoch.Add(48 * time.Hour) }
	return a
}

func TestArchiver_SweepMarksArchived(t *testing.T) {
	store := memory.NewStore().WithClock(func() time.Time { return epoch })
	old := processedEvent(t, store, "order.created")
	pending, err := store.Append(context.Background(), &domain.Event{EventType: "order.created", Source: domain.SourceBackend})
	require.NoError(t, err)

	sink := new(MockSink)
	sink.On("InsertBatch", mock.Anything, mock.MatchedBy(func(events []*domain.Event) bool {
		return len(events) == 1 && events[0].EventID == old
	})).Return(1, nil)

	n, err := newArchiver(store, sink, 10).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	archived, err := store.Get(context.Background(), old)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, archived.Status)

	untouched, err := store.Get(context.Background(), pending)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, untouched.Status)
	sink.AssertExpectations(t)
}

func TestArchiver_SweepRespectsRetention(t *testing.T) {
	store := memory.NewStore().WithClock(func() time.Time { return epoch })
	processedEvent(t, store, "order.created")

	sink := new(MockSink)
	a := newArchiver(store, sink, 10)
	a.now = func() time.Time { return epoch.Add(time.Hour) }

	n, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	sink.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestArchiver_SinkFailureMarksNothing(t *testing.T) {
	store := memory.NewStore().WithClock(func() time.Time { return epoch })
	id := processedEvent(t, store, "order.created")

	sink := new(MockSink)
	sink.On("InsertBatch", mock.Anything, mock.Anything).Return(0, errors.New("clickhouse down"))

	_, err := newArchiver(store, sink, 10).Sweep(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInfrastructure)

	event, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, event.Status)
}

func TestArchiver_PartialWriteMarksNothing(t *testing.T) {
	store := memory.NewStore().WithClock(func() time.Time { return epoch })
	first := processedEvent(t, store, "a")
	processedEvent(t, store, "b")

	sink := new(MockSink)
	sink.On("InsertBatch", mock.Anything, mock.Anything).Return(1, nil)

	_, err := newArchiver(store, sink, 10).Sweep(context.Background())
	assert.Error(t, err)

	event, err := store.Get(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, event.Status)
}

func TestArchiver_BatchSizeBoundsSweep(t *testing.T) {
	store := memory.NewStore().WithClock(func() time.Time { return epoch })
	for i := 0; i < 5; i++ {
		processedEvent(t, store, "a")
	}

	sink := new(MockSink)
	sink.On("InsertBatch", mock.Anything, mock.MatchedBy(func(events []*domain.Event) bool {
		return len(events) == 2
	})).Return(2, nil)
	sink.On("InsertBatch", mock.Anything, mock.MatchedBy(func(events []*domain.Event) bool {
		return len(events) == 1
	})).Return(1, nil)

	a := newArchiver(store, sink, 2)
	total := 0
	for {
		n, err := a.Sweep(context.Background())
		require.NoError(t, err)
		total += n
		if n < 2 {
			break
		}
	}
	assert.Equal(t, 5, total)
}
