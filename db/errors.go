package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when a query matches no rows.
	ErrNotFound = errors.New("db: record not found")

	// ErrDuplicateKey is returned on unique constraint violations.
	ErrDuplicateKey = errors.New("db: duplicate key")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("db: foreign key violation")

	// ErrDeadlock is returned when the database detects a deadlock or a busy lock.
	ErrDeadlock = errors.New("db: deadlock detected")

	// ErrTimeout is returned when a statement exceeds its deadline or is canceled.
	ErrTimeout = errors.New("db: query timeout")

	// ErrCheckViolation is returned when a CHECK or NOT NULL constraint is violated.
	ErrCheckViolation = errors.New("db: check constraint violation")

	// ErrConnectionFailed is returned when the driver cannot reach the server.
	ErrConnectionFailed = errors.New("db: connection failed")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool        { return errors.Is(err, ErrDuplicateKey) }
func IsForeignKeyViolation(err error) bool { return errors.Is(err, ErrForeignKeyViolation) }
func IsDeadlock(err error) bool            { return errors.Is(err, ErrDeadlock) }
func IsTimeout(err error) bool             { return errors.Is(err, ErrTimeout) }
func IsCheckViolation(err error) bool      { return errors.Is(err, ErrCheckViolation) }
func IsConnectionFailed(err error) bool    { return errors.Is(err, ErrConnectionFailed) }

// ─────────────────────────────────────────────────────────────────────────────
// DBError
// ─────────────────────────────────────────────────────────────────────────────

// DBError pairs one of the package sentinels with the driver error that caused
// it. errors.Is matches the sentinel, errors.As/Unwrap reach the driver error.
type DBError struct {
	Sentinel error
	Cause    error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("%s: %v", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

func wrap(sentinel, cause error) error { return &DBError{Sentinel: sentinel, Cause: cause} }

// ─────────────────────────────────────────────────────────────────────────────
// ErrorMapper
// ─────────────────────────────────────────────────────────────────────────────

// ErrorMapper translates raw driver errors into the package sentinels.
// Returning the input unchanged means "no opinion".
type ErrorMapper interface {
	Map(err error) error
}

// ErrorMapperFunc adapts a plain function to ErrorMapper.
type ErrorMapperFunc func(error) error

func (f ErrorMapperFunc) Map(err error) error { return f(err) }

// DefaultErrorMapper handles database/sql and context errors and then tries
// every known driver. Drivers in the registry supply narrower mappers.
func DefaultErrorMapper() ErrorMapper {
	return ChainMapper(
		ErrorMapperFunc(mapPostgresError),
		ErrorMapperFunc(mapMySQLError),
		ErrorMapperFunc(mapSQLiteError),
	)
}

// ChainMapper tries each mapper in order and returns the first result that
// differs from its input. Generic errors (no rows, context) are handled before
// any driver mapper runs, and already-mapped errors pass through untouched.
func ChainMapper(mappers ...ErrorMapper) ErrorMapper {
	return ErrorMapperFunc(func(err error) error {
		if err == nil {
			return nil
		}
		var dbe *DBError
		if errors.As(err, &dbe) {
			return err
		}
		if mapped := mapGenericError(err); mapped != err {
			return mapped
		}
		for _, m := range mappers {
			if mapped := m.Map(err); mapped != err {
				return mapped
			}
		}
		return err
	})
}

func mapGenericError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return wrap(ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return wrap(ErrTimeout, err)
	case errors.Is(err, sql.ErrConnDone):
		return wrap(ErrConnectionFailed, err)
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq and pgx)
// ─────────────────────────────────────────────────────────────────────────────

func mapPostgresError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return mapBySQLState(string(pqErr.Code), err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapBySQLState(pgErr.Code, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return wrap(ErrConnectionFailed, err)
	}
	return err
}

// SQLSTATE codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapBySQLState(code string, cause error) error {
	switch code {
	case "23505":
		return wrap(ErrDuplicateKey, cause)
	case "23503":
		return wrap(ErrForeignKeyViolation, cause)
	case "23514", "23502":
		return wrap(ErrCheckViolation, cause)
	case "40P01":
		return wrap(ErrDeadlock, cause)
	case "57014":
		return wrap(ErrTimeout, cause)
	}
	if strings.HasPrefix(code, "08") {
		return wrap(ErrConnectionFailed, cause)
	}
	return cause
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL
// ─────────────────────────────────────────────────────────────────────────────

func mapMySQLError(err error) error {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return wrap(ErrConnectionFailed, err)
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case 1062: // ER_DUP_ENTRY
		return wrap(ErrDuplicateKey, err)
	case 1452, 1216, 1217, 1451:
		return wrap(ErrForeignKeyViolation, err)
	case 3819, 1048: // ER_CHECK_CONSTRAINT_VIOLATED, ER_BAD_NULL_ERROR
		return wrap(ErrCheckViolation, err)
	case 1213, 1205: // ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		return wrap(ErrDeadlock, err)
	case 3024:
		return wrap(ErrTimeout, err)
	case 1045, 1049:
		return wrap(ErrConnectionFailed, err)
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite
// ─────────────────────────────────────────────────────────────────────────────

// mapSQLiteError matches on message text so that this package does not pull
// the cgo driver into binaries that never use it.
func mapSQLiteError(err error) error {
	s := err.Error()
	switch {
	case strings.Contains(s, "UNIQUE constraint failed"):
		return wrap(ErrDuplicateKey, err)
	case strings.Contains(s, "FOREIGN KEY constraint failed"):
		return wrap(ErrForeignKeyViolation, err)
	case strings.Contains(s, "CHECK constraint failed"), strings.Contains(s, "NOT NULL constraint failed"):
		return wrap(ErrCheckViolation, err)
	case strings.Contains(s, "database is locked"):
		return wrap(ErrDeadlock, err)
	case strings.Contains(s, "unable to open database file"):
		return wrap(ErrConnectionFailed, err)
	}
	return err
}
