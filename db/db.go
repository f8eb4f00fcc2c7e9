// Package db is a thin, SQL-first layer over database/sql. It is not an ORM:
// repositories own their SQL, and this package adds pool configuration, hook
// dispatch, placeholder rebinding, unified error mapping and transactions.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds all options for opening and managing the connection pool.
type Config struct {
	// DSN is the driver-specific data-source name.
	DSN string

	// DriverName is "pgx", "postgres", "mysql", or "sqlite3".
	DriverName string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// PingTimeout bounds the connectivity check performed by Open.
	// Zero means five seconds.
	PingTimeout time.Duration

	// Hooks executed around every statement (logging, metrics, tracing).
	// nil entries are skipped.
	Hooks []Hook
}

// ─────────────────────────────────────────────────────────────────────────────
// DB
// ─────────────────────────────────────────────────────────────────────────────

// DB wraps *sql.DB and is safe for concurrent use. One DB is opened at process
// start and shared by every request.
type DB struct {
	sqldb   *sql.DB
	dialect Dialect
	hooks   hookChain
	errMap  ErrorMapper
}

// Open opens the database described by cfg and verifies connectivity with a
// ping. A failed ping is reported as ErrConnectionFailed.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db: DSN must not be empty")
	}
	if cfg.DriverName == "" {
		return nil, fmt.Errorf("db: DriverName must not be empty")
	}

	sqldb, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	d := &DB{
		sqldb:   sqldb,
		dialect: Dialect{Name: cfg.DriverName, Placeholder: Dollar, Returning: true},
		hooks:   newHookChain(cfg.Hooks),
		errMap:  DefaultErrorMapper(),
	}
	if drv, err := LookupDriver(cfg.DriverName); err == nil {
		d.dialect = drv.Dialect()
		d.errMap = drv.ErrorMapper()
	}

	timeout := cfg.PingTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("db: ping: %w", &DBError{Sentinel: ErrConnectionFailed, Cause: err})
	}

	return d, nil
}

// Dialect reports the SQL dialect of the connected driver.
func (d *DB) Dialect() Dialect { return d.dialect }

// SetErrorMapper replaces the driver's error mapper.
func (d *DB) SetErrorMapper(m ErrorMapper) { d.errMap = m }

// Close closes all pooled connections. Safe to call multiple times.
func (d *DB) Close() error { return d.sqldb.Close() }

// Ping verifies that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.sqldb.PingContext(ctx); err != nil {
		if mapped := d.mapErr(err); mapped != err {
			return mapped
		}
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	return nil
}

// Stats returns pool statistics; telemetry exports them as gauges.
func (d *DB) Stats() sql.DBStats { return d.sqldb.Stats() }

// ─────────────────────────────────────────────────────────────────────────────
// Query execution
// ─────────────────────────────────────────────────────────────────────────────

// Exec executes a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return execWith(ctx, d.sqldb, d.dialect, d.hooks, d.errMap, query, args)
}

// Query executes a query that returns rows. The caller MUST close the rows.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return queryWith(ctx, d.sqldb, d.dialect, d.hooks, d.errMap, query, args)
}

// QueryRow executes a query expected to return at most one row. Errors,
// including ErrNotFound, are deferred to Row.Scan.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *Row {
	return queryRowWith(ctx, d.sqldb, d.dialect, d.hooks, d.errMap, query, args)
}

// Prepare creates a prepared statement. The caller must Close it.
func (d *DB) Prepare(ctx context.Context, query string) (*Stmt, error) {
	return prepareWith(ctx, d.sqldb, d.dialect, d.hooks, d.errMap, query)
}

func (d *DB) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return d.errMap.Map(err)
}

// conn is the subset of *sql.DB and *sql.Tx used by the shared helpers.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func execWith(ctx context.Context, c conn, dl Dialect, hooks hookChain, em ErrorMapper, query string, args []any) (sql.Result, error) {
	query, args, err := dl.Rebind(query, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	hooks.Before(ctx, query, args)
	res, err := c.ExecContext(ctx, query, args...)
	err = em.Map(err)
	hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

func queryWith(ctx context.Context, c conn, dl Dialect, hooks hookChain, em ErrorMapper, query string, args []any) (*sql.Rows, error) {
	query, args, err := dl.Rebind(query, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	hooks.Before(ctx, query, args)
	rows, err := c.QueryContext(ctx, query, args...)
	err = em.Map(err)
	hooks.After(ctx, query, args, time.Since(start), err)
	return rows, err
}

func queryRowWith(ctx context.Context, c conn, dl Dialect, hooks hookChain, em ErrorMapper, query string, args []any) *Row {
	query, args, err := dl.Rebind(query, args)
	if err != nil {
		return &Row{err: err}
	}
	start := time.Now()
	hooks.Before(ctx, query, args)
	return &Row{
		raw:    c.QueryRowContext(ctx, query, args...),
		errMap: em,
		hooks:  hooks,
		ctx:    ctx,
		query:  query,
		args:   args,
		start:  start,
	}
}

func prepareWith(ctx context.Context, c conn, dl Dialect, hooks hookChain, em ErrorMapper, query string) (*Stmt, error) {
	query, perm, err := dl.rebindTemplate(query)
	if err != nil {
		return nil, err
	}
	s, err := c.PrepareContext(ctx, query)
	if err != nil {
		return nil, em.Map(err)
	}
	return &Stmt{stmt: s, query: query, perm: perm, hooks: hooks, errMap: em}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row
// ─────────────────────────────────────────────────────────────────────────────

// Row wraps *sql.Row. AfterQuery hooks fire on Scan, once the outcome of the
// statement is known.
type Row struct {
	raw    *sql.Row
	err    error
	errMap ErrorMapper
	hooks  hookChain
	ctx    context.Context
	query  string
	args   []any
	start  time.Time
}

// Scan copies columns from the matched row into dest values.
// ErrNotFound is returned when no row was found.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	err := r.errMap.Map(r.raw.Scan(dest...))
	r.hooks.After(r.ctx, r.query, r.args, time.Since(r.start), err)
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Stmt
// ─────────────────────────────────────────────────────────────────────────────

// Stmt wraps a prepared *sql.Stmt with hook dispatch and error mapping.
type Stmt struct {
	stmt   *sql.Stmt
	query  string
	perm   []int
	hooks  hookChain
	errMap ErrorMapper
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	args = s.permute(args)
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	res, err := s.stmt.ExecContext(ctx, args...)
	err = s.errMap.Map(err)
	s.hooks.After(ctx, s.query, args, time.Since(start), err)
	return res, err
}

// QueryRow executes the prepared statement expecting one row.
func (s *Stmt) QueryRow(ctx context.Context, args ...any) *Row {
	args = s.permute(args)
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	return &Row{
		raw:    s.stmt.QueryRowContext(ctx, args...),
		errMap: s.errMap,
		hooks:  s.hooks,
		ctx:    ctx,
		query:  s.query,
		args:   args,
		start:  start,
	}
}

// Close releases the prepared statement.
func (s *Stmt) Close() error { return s.stmt.Close() }

func (s *Stmt) permute(args []any) []any {
	if s.perm == nil {
		return args
	}
	out := make([]any, len(s.perm))
	for i, p := range s.perm {
		if p < len(args) {
			out[i] = args[p]
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// WithRetry
// ─────────────────────────────────────────────────────────────────────────────

// RetryConfig controls retry behaviour for transient errors.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	// RetryOn decides whether an error should trigger another attempt.
	// Defaults to connection failures, deadlocks and timeouts.
	RetryOn func(error) bool
	// OnRetry, when set, is called before each new attempt.
	OnRetry func(attempt int, err error)
}

// WithRetry executes fn, retrying on transient errors per cfg. It is meant for
// process bootstrap (waiting for the database to come up), not for requests.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = func(err error) bool {
			return IsConnectionFailed(err) || IsDeadlock(err) || IsTimeout(err)
		}
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryOn(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("db: all %d attempts failed, last error: %w", attempts, lastErr)
}
