package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

// maxAppendAttempts bounds retries when two writers race for the same stream version
const maxAppendAttempts = 5

const eventColumns = `seq, event_id, event_type, source, category, user_id, entity_type, entity_id,
	correlation_id, payload, metadata, context, status, retry_count, processors, error_message,
	created_at, updated_at, processed_at, version, schema_version`

type rowScanner interface {
	Scan(dest ...any) error
}

// Append persists the event inside a transaction that assigns its stream version
func (s *Store) Append(ctx context.Context, event *domain.Event) (string, error) {
	if event == nil || strings.TrimSpace(event.EventType) == "" {
		return "", apperrors.Validation("event_type is required")
	}

	if event.EventID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", apperrors.Infrastructure("failed to generate event id", err)
		}
		event.EventID = id.String()
	}

	now := s.now()
	event.Status = domain.StatusPending
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.SchemaVersion == "" {
		event.SchemaVersion = domain.DefaultSchemaVersion
	}

	encoded, err := encodeEvent(event)
	if err != nil {
		return "", apperrors.Validation("event is not serializable: %v", err)
	}

	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		err = s.withTx(ctx, func(tx *sql.Tx) error {
			return s.insertEvent(ctx, tx, event, encoded)
		})
		if err == nil {
			return event.EventID, nil
		}
		if !isUniqueViolation(err) {
			return "", apperrors.Infrastructure("failed to append event", err)
		}

		exists, lookupErr := s.exists(ctx, event.EventID)
		if lookupErr != nil {
			return "", apperrors.Infrastructure("failed to append event", lookupErr)
		}
		if exists {
			return "", apperrors.Conflict("event %s already exists", event.EventID)
		}

		s.log.Debug("Stream version conflict, retrying append",
			zap.String("event_id", event.EventID),
			zap.String("stream_id", string(event.StreamID())),
			zap.Int("attempt", attempt))
	}

	return "", apperrors.Conflict("could not assign a version in stream %s", event.StreamID())
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, event *domain.Event, enc encodedEvent) error {
	version := 0
	if event.HasStream() {
		row := tx.QueryRowContext(ctx, s.rebind(
			`SELECT COALESCE(MAX(version), 0) FROM events WHERE entity_type = ? AND entity_id = ?`),
			event.EntityType, event.EntityID)
		if err := row.Scan(&version); err != nil {
			return fmt.Errorf("read stream version: %w", err)
		}
		version++
	}

	row := tx.QueryRowContext(ctx, s.rebind(`INSERT INTO events (
		event_id, event_type, source, category, user_id, entity_type, entity_id,
		correlation_id, payload, metadata, context, status, retry_count, processors, error_message,
		created_at, updated_at, processed_at, version, schema_version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?) RETURNING seq`),
		event.EventID, event.EventType, string(event.Source), string(event.Category), event.UserID,
		event.EntityType, event.EntityID, event.CorrelationID, enc.payload, enc.metadata, enc.context,
		string(event.Status), event.RetryCount, enc.processors, event.ErrorMessage,
		toMicros(event.CreatedAt), toMicros(event.UpdatedAt), version, event.SchemaVersion,
	)

	var seq int64
	if err := row.Scan(&seq); err != nil {
		return err
	}
	event.Sequence = seq
	event.Version = version
	return nil
}

func (s *Store) exists(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM events WHERE event_id = ?`), eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Get returns a single event
func (s *Store) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+eventColumns+` FROM events WHERE event_id = ?`), eventID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("event %s not found", eventID)
	}
	if err != nil {
		return nil, apperrors.Infrastructure("failed to read event", err)
	}
	return event, nil
}

// Query counts matching rows then reads one page, newest first
func (s *Store) Query(ctx context.Context, filter repository.EventFilter, page repository.Page) (*repository.QueryResult, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	where, args := buildFilter(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM events`+where), args...).Scan(&total); err != nil {
		return nil, apperrors.Infrastructure("failed to count events", err)
	}

	pageArgs := append(append([]any{}, args...), page.Limit, page.Offset)
	items, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events`+where+` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to query events", err)
	}

	return &repository.QueryResult{
		Items:   items,
		Total:   total,
		HasMore: page.HasMore(total),
	}, nil
}

// GetStream returns stream events after fromVersion in version order
func (s *Store) GetStream(ctx context.Context, streamID domain.StreamID, fromVersion int) (*domain.Stream, error) {
	id, entityType, entityID, err := domain.ParseStreamID(string(streamID))
	if err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}

	var version int
	if err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE entity_type = ? AND entity_id = ?`),
		entityType, entityID).Scan(&version); err != nil {
		return nil, apperrors.Infrastructure("failed to read stream version", err)
	}
	if version == 0 {
		return nil, apperrors.NotFound("stream %s not found", id)
	}

	events, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE entity_type = ? AND entity_id = ? AND version > ? ORDER BY version`,
		entityType, entityID, fromVersion)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to read stream", err)
	}

	return &domain.Stream{
		StreamID:   id,
		EntityType: entityType,
		EntityID:   entityID,
		Events:     events,
		Version:    version,
	}, nil
}

// ClaimAndMark updates the row only while its status still equals transition.From
func (s *Store) ClaimAndMark(ctx context.Context, eventID string, transition repository.Transition) (bool, error) {
	claimed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status, processorsRaw string
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT status, processors FROM events WHERE event_id = ?`), eventID).
			Scan(&status, &processorsRaw)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("event %s not found", eventID)
		}
		if err != nil {
			return err
		}
		if domain.EventStatus(status) != transition.From {
			return nil
		}

		var processors []string
		if err := json.Unmarshal([]byte(processorsRaw), &processors); err != nil {
			return fmt.Errorf("decode processors: %w", err)
		}
		processors = append(processors, transition.Processors...)
		processorsJSON, err := json.Marshal(nonNilStrings(processors))
		if err != nil {
			return err
		}

		sets := []string{"status = ?", "updated_at = ?", "processors = ?"}
		args := []any{string(transition.To), toMicros(s.now()), string(processorsJSON)}
		if transition.ErrorMessage != nil {
			sets = append(sets, "error_message = ?")
			args = append(args, *transition.ErrorMessage)
		}
		if transition.IncrementRetry {
			sets = append(sets, "retry_count = retry_count + 1")
		}
		if transition.ProcessedAt != nil {
			sets = append(sets, "processed_at = ?")
			args = append(args, toMicros(*transition.ProcessedAt))
		}
		args = append(args, eventID, string(transition.From))

		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE event_id = ? AND status = ?`), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return false, err
		}
		return false, apperrors.Infrastructure("failed to transition event", err)
	}
	return claimed, nil
}

// ListRetryable returns failed events below the retry bound, oldest first
func (s *Store) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*domain.Event, error) {
	events, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE status = ? AND retry_count < ? ORDER BY seq LIMIT ?`,
		string(domain.StatusFailed), maxRetries, limit)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to list retryable events", err)
	}
	return events, nil
}

// ListByStatus returns events in a status last updated before olderThan, oldest first
func (s *Store) ListByStatus(ctx context.Context, status domain.EventStatus, olderThan time.Time, limit int) ([]*domain.Event, error) {
	events, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE status = ? AND updated_at < ? ORDER BY seq LIMIT ?`,
		string(status), toMicros(olderThan), limit)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to list events by status", err)
	}
	return events, nil
}

// ListByTimeRange returns events within [from, to] by ascending time, ties broken by sequence
func (s *Store) ListByTimeRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	events, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE created_at >= ? AND created_at <= ? ORDER BY created_at, seq`,
		toMicros(from), toMicros(to))
	if err != nil {
		return nil, apperrors.Infrastructure("failed to list events by time range", err)
	}
	return events, nil
}

// SaveResults inserts processor outcomes in a single transaction
func (s *Store) SaveResults(ctx context.Context, eventID string, results []domain.ProcessingResult) error {
	exists, err := s.exists(ctx, eventID)
	if err != nil {
		return apperrors.Infrastructure("failed to save results", err)
	}
	if !exists {
		return apperrors.NotFound("event %s not found", eventID)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO processing_results
			(event_id, processor, status, duration_us, error_message, created_at) VALUES (?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, eventID, r.Processor, string(r.Status),
				r.Duration.Microseconds(), r.ErrorMessage, toMicros(r.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Infrastructure("failed to save results", err)
	}
	return nil
}

// GetResults returns recorded processor outcomes in insertion order
func (s *Store) GetResults(ctx context.Context, eventID string) ([]domain.ProcessingResult, error) {
	exists, err := s.exists(ctx, eventID)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to read results", err)
	}
	if !exists {
		return nil, apperrors.NotFound("event %s not found", eventID)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT processor, status, duration_us, error_message, created_at
		FROM processing_results WHERE event_id = ? ORDER BY id`), eventID)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to read results", err)
	}
	defer rows.Close()

	results := make([]domain.ProcessingResult, 0)
	for rows.Next() {
		var (
			r          domain.ProcessingResult
			status     string
			durationUS int64
			createdAt  int64
		)
		if err := rows.Scan(&r.Processor, &status, &durationUS, &r.ErrorMessage, &createdAt); err != nil {
			return nil, apperrors.Infrastructure("failed to scan result", err)
		}
		r.EventID = eventID
		r.Status = domain.ResultStatus(status)
		r.Duration = time.Duration(durationUS) * time.Microsecond
		r.CreatedAt = fromMicros(createdAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Infrastructure("failed to read results", err)
	}
	return results, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func buildFilter(filter repository.EventFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		clauses = append(clauses, clause)
		args = append(args, arg)
	}

	if filter.UserID != "" {
		add("user_id = ?", filter.UserID)
	}
	if filter.EntityType != "" {
		add("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = ?", filter.EntityID)
	}
	if filter.EventType != "" {
		add("event_type = ?", filter.EventType)
	}
	if filter.Source != "" {
		add("source = ?", string(filter.Source))
	}
	if filter.Category != "" {
		add("category = ?", string(filter.Category))
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.CorrelationID != "" {
		add("correlation_id = ?", filter.CorrelationID)
	}
	if filter.StartTime != nil {
		add("created_at >= ?", toMicros(*filter.StartTime))
	}
	if filter.EndTime != nil {
		add("created_at <= ?", toMicros(*filter.EndTime))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type encodedEvent struct {
	payload    string
	metadata   string
	context    string
	processors string
}

func encodeEvent(event *domain.Event) (encodedEvent, error) {
	var enc encodedEvent
	for _, field := range []struct {
		dst *string
		src any
	}{
		{&enc.payload, nonNilMap(event.Payload)},
		{&enc.metadata, nonNilMap(event.Metadata)},
		{&enc.context, nonNilMap(event.Context)},
		{&enc.processors, nonNilStrings(event.Processors)},
	} {
		raw, err := json.Marshal(field.src)
		if err != nil {
			return encodedEvent{}, err
		}
		*field.dst = string(raw)
	}
	return enc, nil
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		event                                   domain.Event
		source, category, status                string
		payload, metadata, eventCtx, processors string
		createdAt, updatedAt                    int64
		processedAt                             sql.NullInt64
	)
	err := row.Scan(
		&event.Sequence, &event.EventID, &event.EventType, &source, &category, &event.UserID,
		&event.EntityType, &event.EntityID, &event.CorrelationID, &payload, &metadata, &eventCtx,
		&status, &event.RetryCount, &processors, &event.ErrorMessage,
		&createdAt, &updatedAt, &processedAt, &event.Version, &event.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}

	event.Source = domain.Source(source)
	event.Category = domain.Category(category)
	event.Status = domain.EventStatus(status)
	event.CreatedAt = fromMicros(createdAt)
	event.UpdatedAt = fromMicros(updatedAt)
	if processedAt.Valid {
		t := fromMicros(processedAt.Int64)
		event.ProcessedAt = &t
	}

	for _, field := range []struct {
		raw string
		dst any
	}{
		{payload, &event.Payload},
		{metadata, &event.Metadata},
		{eventCtx, &event.Context},
		{processors, &event.Processors},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.dst); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", event.EventID, err)
		}
	}

	return &event, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
