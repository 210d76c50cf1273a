package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Service.Environment)
	assert.Equal(t, "8080", cfg.Service.APIPort)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, time.Second, cfg.Worker.PollTimeout)
	assert.Equal(t, 5*time.Second, cfg.Delivery.Timeout)
	assert.Equal(t, "events.signals", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Worker.ProcessingLease)
	assert.Equal(t, 5*time.Second, cfg.Worker.SubscriptionRefresh)
	assert.False(t, cfg.ClickHouse.UseTLS)
	assert.Equal(t, uint8(10), cfg.ClickHouse.BlockBufferSize)
}

func TestLoad_NestedPrefixes(t *testing.T) {
	t.Setenv("SERVICE_ENVIRONMENT", "production")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_SRV_NAME", "_postgres._tcp.internal")
	t.Setenv("QUEUE_BACKEND", "sqs")
	t.Setenv("SQS_QUEUE_URL", "http://localhost:9324/queue/events")
	t.Setenv("WORKER_PROCESSOR_TIMEOUT", "2s")
	t.Setenv("VALKEY_HOST", "valkey")
	t.Setenv("CLICKHOUSE_USE_TLS", "true")
	t.Setenv("WORKER_SUBSCRIPTION_REFRESH", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Service.Environment)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "_postgres._tcp.internal", cfg.Storage.SRVName)
	assert.Equal(t, "http://localhost:9324/queue/events", cfg.SQS.QueueURL)
	assert.Equal(t, 2*time.Second, cfg.Worker.ProcessorTimeout)
	assert.Equal(t, "valkey", cfg.Valkey.Host)
	assert.True(t, cfg.ClickHouse.UseTLS)
	assert.Equal(t, 30*time.Second, cfg.Worker.SubscriptionRefresh)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"STORAGE_DRIVER": "oracle"}},
		{name: "sqs without url", env: map[string]string{"QUEUE_BACKEND": "sqs"}},
		{name: "zero workers", env: map[string]string{"WORKER_COUNT": "0"}},
		{name: "archive without clickhouse", env: map[string]string{"ARCHIVE_ENABLED": "true"}},
		{name: "memory queue without embedded workers", env: map[string]string{"SERVICE_EMBEDDED_WORKERS": "false"}},
		{name: "lease shorter than processor timeout", env: map[string]string{"WORKER_PROCESSING_LEASE": "10s"}},
		{name: "zero subscription refresh", env: map[string]string{"WORKER_SUBSCRIPTION_REFRESH": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
