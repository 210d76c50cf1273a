package sqlstore

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		source TEXT NOT NULL,
		category TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		metadata TEXT NOT NULL,
		context TEXT NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		processors TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		processed_at BIGINT,
		version INTEGER NOT NULL,
		schema_version TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processing_results (
		id BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL,
		processor TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_us BIGINT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		event_types TEXT NOT NULL,
		event_sources TEXT NOT NULL,
		event_categories TEXT NOT NULL,
		target TEXT NOT NULL,
		enabled BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projections (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		version INTEGER NOT NULL,
		last_applied_event_id TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		source TEXT NOT NULL,
		category TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		metadata TEXT NOT NULL,
		context TEXT NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		processors TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		processed_at INTEGER,
		version INTEGER NOT NULL,
		schema_version TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processing_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		processor TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_us INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		event_types TEXT NOT NULL,
		event_sources TEXT NOT NULL,
		event_categories TEXT NOT NULL,
		target TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projections (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		version INTEGER NOT NULL,
		last_applied_event_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// Indexes are shared; both engines accept partial indexes.
var sharedIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_stream ON events (entity_type, entity_id, version) WHERE entity_id <> ''`,
	`CREATE INDEX IF NOT EXISTS idx_events_status ON events (status, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_events_created ON events (created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_events_correlation ON events (correlation_id) WHERE correlation_id <> ''`,
	`CREATE INDEX IF NOT EXISTS idx_events_user ON events (user_id) WHERE user_id <> ''`,
	`CREATE INDEX IF NOT EXISTS idx_results_event ON processing_results (event_id, id)`,
}
