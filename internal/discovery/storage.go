// Package discovery resolves where the event store lives.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPostgresHost is the in-network name of the PostgreSQL service.
	DefaultPostgresHost = "postgres"
	// DefaultPostgresPort is the conventional PostgreSQL port.
	DefaultPostgresPort = 5432
	// DefaultSQLitePath is used when the sqlite driver is selected without a DSN.
	DefaultSQLitePath = "events.db"

	sqlitePragmas = "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
)

// Resolver looks up SRV records. *net.Resolver satisfies it.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// StorageSettings is the subset of configuration needed to locate the store.
type StorageSettings struct {
	Driver   string
	DSN      string
	SRVName  string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Source names the step that produced a DSN.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceSRV      Source = "srv"
	SourceHostPort Source = "host_port"
	SourceDefault  Source = "default"
)

// ResolveStorage picks a DSN: explicit value, then SRV lookup, then host/port, then the in-network default.
// A failed SRV lookup falls through to the next step.
func ResolveStorage(ctx context.Context, resolver Resolver, s StorageSettings) (string, Source) {
	if dsn := strings.TrimSpace(s.DSN); dsn != "" {
		return dsn, SourceExplicit
	}

	if strings.EqualFold(s.Driver, "sqlite") {
		return DefaultSQLitePath + sqlitePragmas, SourceDefault
	}

	if name := strings.TrimSpace(s.SRVName); name != "" && resolver != nil {
		if _, records, err := resolver.LookupSRV(ctx, "", "", name); err == nil && len(records) > 0 {
			target := strings.TrimSuffix(records[0].Target, ".")
			return postgresDSN(s, target, int(records[0].Port)), SourceSRV
		}
	}

	if host := strings.TrimSpace(s.Host); host != "" {
		return postgresDSN(s, host, OrDefaultPort(s.Port)), SourceHostPort
	}

	return postgresDSN(s, DefaultPostgresHost, DefaultPostgresPort), SourceDefault
}

// SQLiteDSN appends the standard pragmas to a file path.
func SQLiteDSN(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultSQLitePath
	}
	if strings.Contains(path, "?") || path == ":memory:" {
		return path
	}
	return path + sqlitePragmas
}

// OrDefaultPort returns port when set, otherwise the PostgreSQL convention.
func OrDefaultPort(port int) int {
	if port > 0 {
		return port
	}
	return DefaultPostgresPort
}

func postgresDSN(s StorageSettings, host string, port int) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + orDefault(s.Database, "events"),
	}
	if s.User != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.User, s.Password)
		} else {
			u.User = url.User(s.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", orDefault(s.SSLMode, "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

func orDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return fallback
}

// Describe renders a DSN without credentials for logging.
func Describe(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		if i := strings.Index(dsn, "?"); i >= 0 {
			return dsn[:i]
		}
		return dsn
	}
	u.User = nil
	u.RawQuery = ""
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)
}
