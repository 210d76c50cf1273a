package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
)

type capturePublisher struct {
	mu      sync.Mutex
	got     []Signal
	err     error
	release chan struct{}
}

func (p *capturePublisher) Publish(ctx context.Context, s Signal) error {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, s)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func TestDispatcher_PublishesInBackground(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(pub, 10, metrics.New(), zap.NewNop())
	d.Start()

	d.Emit(context.Background(), New(TypeStored, "evt-1", nil))
	d.Emit(context.Background(), New(TypeProcessed, "evt-1", nil))
	d.Stop()

	assert.Equal(t, 2, pub.count())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	pub := &capturePublisher{release: make(chan struct{})}
	m := metrics.New()
	d := NewDispatcher(pub, 1, m, zap.NewNop())
	d.Start()

	// first is picked up and blocks in Publish, second fills the buffer
	d.Emit(context.Background(), New(TypeStored, "a", nil))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), New(TypeStored, "b", nil))

	start := time.Now()
	d.Emit(context.Background(), New(TypeStored, "c", nil))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Signals.WithLabelValues("stored", "dropped")))

	close(pub.release)
	d.Stop()
	assert.Equal(t, 2, pub.count())
}

func TestDispatcher_PublishErrorIsSwallowed(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	m := metrics.New()
	d := NewDispatcher(pub, 4, m, zap.NewNop())
	d.Start()

	d.Emit(context.Background(), New(TypeFailed, "evt", nil))
	d.Stop()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Signals.WithLabelValues("failed", "failed")))
}

func TestDispatcher_EmitAfterStop(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(pub, 4, metrics.New(), zap.NewNop())
	d.Start()
	d.Stop()

	d.Emit(context.Background(), New(TypeStored, "late", nil))
	assert.Zero(t, pub.count())
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	closed   bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "events.signals")

	require.NoError(t, p.Publish(context.Background(), New(TypeReplayStarted, "replay", map[string]any{"count": 5})))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "events.signals.replay_started", conn.subjects[0])

	var decoded Signal
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, TypeReplayStarted, decoded.Type)
	assert.Equal(t, float64(5), decoded.Data["count"])

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}

func TestNATSPublisher_NoPrefix(t *testing.T) {
	p := newNATSPublisher(&fakeConn{}, "")
	assert.Equal(t, "stored", p.Subject(TypeStored))
}
