// Pluggable driver layer: each adapter knows how to build a DSN from
// structured options, which SQL dialect the server speaks and how its errors
// map onto the package sentinels.

package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dialect
// ─────────────────────────────────────────────────────────────────────────────

// Placeholder is the bind-parameter syntax understood by a driver.
type Placeholder int

const (
	// Dollar is the PostgreSQL style: $1, $2, ...
	Dollar Placeholder = iota
	// Question is the MySQL/SQLite positional style: ?, ?, ...
	Question
)

// Dialect describes the SQL surface a repository can rely on. Repositories
// always write $N placeholders; the DB rewrites them for Question dialects.
type Dialect struct {
	Name        string
	Placeholder Placeholder
	// Returning reports whether INSERT/UPDATE ... RETURNING is available.
	Returning bool
}

// Rebind rewrites $N placeholders into the dialect's syntax. For Question
// dialects the arguments are reordered (and duplicated where a placeholder is
// reused) so that they line up with the emitted '?' markers. Queries that
// already use '?' pass through untouched.
func (d Dialect) Rebind(query string, args []any) (string, []any, error) {
	q, perm, err := d.rebindTemplate(query)
	if err != nil || perm == nil {
		return q, args, err
	}
	out := make([]any, len(perm))
	for i, p := range perm {
		if p >= len(args) {
			return "", nil, fmt.Errorf("db: placeholder $%d out of range (%d args)", p+1, len(args))
		}
		out[i] = args[p]
	}
	return q, out, nil
}

// rebindTemplate rewrites the query and returns, for every emitted '?', the
// zero-based index of the argument it consumes. Text inside single-quoted
// literals is left alone.
func (d Dialect) rebindTemplate(query string) (string, []int, error) {
	if d.Placeholder != Question || !strings.Contains(query, "$") {
		return query, nil, nil
	}

	var b strings.Builder
	b.Grow(len(query))
	var perm []int
	quoted := false

	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			quoted = !quoted
		}
		if ch != '$' || quoted {
			b.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(ch)
			continue
		}
		n, err := strconv.Atoi(query[i+1 : j])
		if err != nil || n < 1 {
			return "", nil, fmt.Errorf("db: invalid placeholder %s", query[i:j])
		}
		b.WriteByte('?')
		perm = append(perm, n-1)
		i = j - 1
	}
	return b.String(), perm, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver interface
// ─────────────────────────────────────────────────────────────────────────────

// Driver encapsulates database-specific behaviour. The database/sql driver
// itself registers through a blank import of its package.
type Driver interface {
	// Name returns the name passed to sql.Register, e.g. "pgx", "mysql".
	Name() string

	// DSN converts structured options into a driver DSN string.
	DSN(opts DriverOptions) (string, error)

	// Dialect describes placeholder syntax and RETURNING support.
	Dialect() Dialect

	// ErrorMapper returns a mapper tuned to this driver's error types.
	ErrorMapper() ErrorMapper
}

// DriverOptions carries the common connection parameters in a driver-agnostic
// form. DSN() converts them to the driver's native format.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Extra holds driver-specific key/value parameters.
	Extra map[string]string
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver adds a Driver to the registry. It panics on a duplicate name;
// use ReplaceDriver to override a built-in.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name()]; ok {
		panic(fmt.Sprintf("db: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// ReplaceDriver upserts a driver in the registry.
func ReplaceDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver builds the DSN through a registered Driver and opens the pool.
//
//	database, err := db.OpenWithDriver("pgx", db.DriverOptions{
//	    Host: "localhost", User: "app", Password: "secret", Database: "appdb",
//	}, db.Config{MaxOpenConns: 25})
func OpenWithDriver(driverName string, opts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}
	dsn, err := drv.DSN(opts)
	if err != nil {
		return nil, fmt.Errorf("db: build DSN: %w", err)
	}
	cfg.DriverName = drv.Name()
	cfg.DSN = dsn
	return Open(cfg)
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL adapters (lib/pq, pgx)
// ─────────────────────────────────────────────────────────────────────────────

var postgresDialect = Dialect{Name: "postgres", Placeholder: Dollar, Returning: true}

// postgresURL builds the URL form both lib/pq and pgx accept. golang-migrate
// only takes URLs, so keyword DSNs are never produced.
func postgresURL(driver string, o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("%s driver: Host and Database are required", driver)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   o.Host + ":" + strconv.Itoa(portOr(o.Port, 5432)),
		Path:   "/" + o.Database,
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
	}
	q := url.Values{}
	q.Set("sslmode", valueOr(o.SSLMode, "disable"))
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PostgresDriver is the lib/pq adapter.
type PostgresDriver struct{}

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) DSN(o DriverOptions) (string, error) { return postgresURL("postgres", o) }

func (PostgresDriver) Dialect() Dialect         { return postgresDialect }
func (PostgresDriver) ErrorMapper() ErrorMapper { return ChainMapper(ErrorMapperFunc(mapPostgresError)) }

// PgxDriver is the pgx/v5 stdlib adapter.
type PgxDriver struct{}

func (PgxDriver) Name() string { return "pgx" }

func (PgxDriver) DSN(o DriverOptions) (string, error) { return postgresURL("pgx", o) }

func (PgxDriver) Dialect() Dialect         { return postgresDialect }
func (PgxDriver) ErrorMapper() ErrorMapper { return ChainMapper(ErrorMapperFunc(mapPostgresError)) }

// ─────────────────────────────────────────────────────────────────────────────
// MySQL adapter
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver is the go-sql-driver/mysql adapter. MySQL has no RETURNING, so
// repositories re-read rows after writes.
type MySQLDriver struct{}

func (MySQLDriver) Name() string { return "mysql" }

func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql driver: Host and Database are required")
	}
	q := url.Values{}
	q.Set("parseTime", "true")
	q.Set("loc", "UTC")
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		o.User, o.Password, o.Host, portOr(o.Port, 3306), o.Database, q.Encode()), nil
}

func (MySQLDriver) Dialect() Dialect {
	return Dialect{Name: "mysql", Placeholder: Question, Returning: false}
}
func (MySQLDriver) ErrorMapper() ErrorMapper { return ChainMapper(ErrorMapperFunc(mapMySQLError)) }

// ─────────────────────────────────────────────────────────────────────────────
// SQLite adapter
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver is the mattn/go-sqlite3 adapter. Database is the file path or
// ":memory:". RETURNING is reported as unavailable: go-sqlite3 decodes DATETIME
// columns by declared type, which only plain SELECTs carry, so writes re-read.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite3" }

func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	if len(o.Extra) == 0 {
		return o.Database, nil
	}
	q := url.Values{}
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	return o.Database + "?" + q.Encode(), nil
}

func (SQLiteDriver) Dialect() Dialect {
	return Dialect{Name: "sqlite3", Placeholder: Question, Returning: false}
}
func (SQLiteDriver) ErrorMapper() ErrorMapper { return ChainMapper(ErrorMapperFunc(mapSQLiteError)) }

func init() {
	RegisterDriver(PostgresDriver{})
	RegisterDriver(PgxDriver{})
	RegisterDriver(MySQLDriver{})
	RegisterDriver(SQLiteDriver{})
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func portOr(p, fallback int) int {
	if p == 0 {
		return fallback
	}
	return p
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
