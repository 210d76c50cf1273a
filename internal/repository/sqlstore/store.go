// Package sqlstore implements the repositories on database/sql.
// PostgreSQL is reached through the pgx stdlib driver and SQLite through modernc.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Dialect captures the differences between the supported SQL engines
type Dialect struct {
	Name       string
	driverName string
	numbered   bool
	schema     []string
}

var dialects = map[string]Dialect{
	DriverPostgres: {Name: DriverPostgres, driverName: "pgx", numbered: true, schema: postgresSchema},
	DriverSQLite:   {Name: DriverSQLite, driverName: "sqlite", schema: sqliteSchema},
}

// Store implements repository.Store on a SQL database
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
	now     func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Open connects to the database and verifies the connection
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*Store, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	log.Info("Connecting to event store",
		zap.String("driver", driver))

	db, err := sql.Open(dialect.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite serializes writers; one connection also keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	log.Info("Event store connection established successfully")

	return New(db, dialect, log), nil
}

// New wraps an existing database handle
func New(db *sql.DB, dialect Dialect, log *zap.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DialectFor returns the dialect registered for a driver name
func DialectFor(driver string) (Dialect, bool) {
	d, ok := dialects[driver]
	return d, ok
}

// InitSchema creates tables and indexes if they don't exist
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := append(append([]string{}, s.dialect.schema...), sharedIndexes...)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	s.log.Info("Event store schema initialized successfully", zap.String("driver", s.dialect.Name))
	return nil
}

// SetPool applies connection pool limits. SQLite keeps its single connection.
func (s *Store) SetPool(maxOpen, maxIdle int, maxLifetime time.Duration) {
	if s.dialect.Name == DriverSQLite {
		return
	}
	if maxOpen > 0 {
		s.db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		s.db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		s.db.SetConnMaxLifetime(maxLifetime)
	}
}

// Ping checks if the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	s.log.Info("Closing event store connection")
	return s.db.Close()
}

// rebind rewrites ? placeholders into the dialect's form
func (s *Store) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// WithClock overrides the time source, used by tests
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}
