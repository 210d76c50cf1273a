// Package clickhouse writes archived events to a ClickHouse cold-storage table.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// Sink stores archived events in a ReplacingMergeTree keyed by event id,
// so re-archiving the same event after a partial failure does not duplicate it.
type Sink struct {
	conn driver.Conn
	log  *zap.Logger
}

// NewSink creates a sink on an open connection
func NewSink(conn driver.Conn, log *zap.Logger) *Sink {
	return &Sink{conn: conn, log: log}
}

// InitSchema creates the archive table
func (s *Sink) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS events_archive (
		event_id String,
		event_type LowCardinality(String),
		event_source LowCardinality(String),
		event_category LowCardinality(String),
		user_id String,
		entity_type LowCardinality(String),
		entity_id String,
		correlation_id String,
		version UInt32,
		sequence Int64,
		schema_version LowCardinality(String),
		payload String,
		metadata String,
		context String,
		processors Array(String),
		retry_count UInt32,
		created_at DateTime64(6),
		processed_at Nullable(DateTime64(6)),
		archived_at DateTime64(6)
	) ENGINE = ReplacingMergeTree(archived_at)
	ORDER BY (event_id)
	PARTITION BY toYYYYMM(created_at)
	SETTINGS index_granularity = 8192
	`

	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create events_archive table: %w", err)
	}

	s.log.Info("ClickHouse archive schema initialized")
	return nil
}

// InsertBatch writes the events in one batch and returns how many were sent
func (s *Sink) InsertBatch(ctx context.Context, events []*domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO events_archive")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	archivedAt := time.Now().UTC()
	for _, event := range events {
		payload, err := encode(event.Payload)
		if err != nil {
			return 0, fmt.Errorf("failed to encode payload of %s: %w", event.EventID, err)
		}
		metadata, err := encode(event.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode metadata of %s: %w", event.EventID, err)
		}
		eventContext, err := encode(event.Context)
		if err != nil {
			return 0, fmt.Errorf("failed to encode context of %s: %w", event.EventID, err)
		}

		processors := event.Processors
		if processors == nil {
			processors = []string{}
		}

		err = batch.Append(
			event.EventID,
			event.EventType,
			string(event.Source),
			string(event.Category),
			event.UserID,
			event.EntityType,
			event.EntityID,
			event.CorrelationID,
			uint32(event.Version),
			event.Sequence,
			event.SchemaVersion,
			payload,
			metadata,
			eventContext,
			processors,
			uint32(event.RetryCount),
			event.CreatedAt,
			event.ProcessedAt,
			archivedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return len(events), nil
}

// CountArchived returns how many events of a type were archived in [from, to]
func (s *Sink) CountArchived(ctx context.Context, eventType string, from, to time.Time) (uint64, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `
		SELECT count()
		FROM events_archive FINAL
		WHERE event_type = ? AND created_at >= ? AND created_at <= ?
	`, eventType, from, to)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived events: %w", err)
	}
	return count, nil
}

// Ping checks if the ClickHouse connection is alive
func (s *Sink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func encode(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
