package projection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// fakeCmdable serves Get/Set/Del from a map; every other command panics through the nil embed.
type fakeCmdable struct {
	redis.Cmdable
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestValkeyCache_RoundTrip(t *testing.T) {
	client := newFakeCmdable()
	cache := NewValkeyCache(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "device:9")
	require.NoError(t, err)
	assert.False(t, ok)

	p := &domain.Projection{
		ID:      "device:9",
		State:   map[string]map[string]any{"status": {"value": "on"}},
		Version: 3,
	}
	require.NoError(t, cache.Set(ctx, p))
	assert.Equal(t, time.Minute, client.ttls["projection:device:9"])

	got, ok, err := cache.Get(ctx, "device:9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "on", got.State["status"]["value"])

	require.NoError(t, cache.Delete(ctx, "device:9"))
	_, ok, err = cache.Get(ctx, "device:9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValkeyCache_CorruptEntryIsEvicted(t *testing.T) {
	client := newFakeCmdable()
	client.data["projection:device:9"] = "{not json"
	cache := NewValkeyCache(client, time.Minute, zap.NewNop())

	_, ok, err := cache.Get(context.Background(), "device:9")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotContains(t, client.data, "projection:device:9")
}

func TestValkeyCache_ReadError(t *testing.T) {
	client := newFakeCmdable()
	client.getErr = errors.New("connection refused")
	cache := NewValkeyCache(client, time.Minute, zap.NewNop())

	_, ok, err := cache.Get(context.Background(), "device:9")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestEngine_ValkeyCacheBacked(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	engine.cache = NewValkeyCache(newFakeCmdable(), time.Minute, zap.NewNop())
	ctx := context.Background()

	appendDeviceStatus(t, store, "on")
	created, err := engine.Create(ctx, "device", "9")
	require.NoError(t, err)

	got, err := engine.Get(ctx, "device:9")
	require.NoError(t, err)

	want, err := json.Marshal(created.State)
	require.NoError(t, err)
	have, err := json.Marshal(got.State)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))
	assert.Equal(t, created.Version, got.Version)
}
