// Package migrations embeds the schema migrations for every supported
// dialect and runs them through golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql mysql/*.sql sqlite3/*.sql
var files embed.FS

// Dir returns the embedded directory holding the migrations for a database
// driver name ("pgx", "postgres", "mysql", "sqlite3").
func Dir(driver string) (string, error) {
	switch driver {
	case "pgx", "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite3":
		return "sqlite3", nil
	}
	return "", fmt.Errorf("migrations: unsupported driver %q", driver)
}

// URL converts a database/sql DSN into the database URL golang-migrate
// expects for the same server.
func URL(driver, dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("migrations: empty DSN")
	}
	switch driver {
	case "pgx", "postgres":
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return "", fmt.Errorf("migrations: %s DSN must be a postgres:// URL", driver)
		}
		return dsn, nil
	case "mysql":
		// the mysql migrate driver runs each file as one multi-statement exec
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		if !strings.Contains(dsn, "multiStatements=") {
			dsn += sep + "multiStatements=true"
		}
		return "mysql://" + dsn, nil
	case "sqlite3":
		return "sqlite3://" + dsn, nil
	}
	return "", fmt.Errorf("migrations: unsupported driver %q", driver)
}

// New returns a migrate instance reading the embedded migrations for driver
// and applying them to dsn. The caller must Close it.
func New(driver, dsn string) (*migrate.Migrate, error) {
	dir, err := Dir(driver)
	if err != nil {
		return nil, err
	}
	dbURL, err := URL(driver, dsn)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	m.Log = &Logger{Logger: slog.Default()}
	return m, nil
}

// Up applies every pending migration. An already current schema is not an
// error.
func Up(driver, dsn string) error {
	m, err := New(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// UpSQL returns the concatenated up migrations for driver, in version order.
// Tests use it to build a schema on connections migrate cannot reach, such as
// an in-memory SQLite database.
func UpSQL(driver string) (string, error) {
	dir, err := Dir(driver)
	if err != nil {
		return "", err
	}
	names, err := fs.Glob(files, dir+"/*.up.sql")
	if err != nil {
		return "", err
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("migrations: read %s: %w", name, err)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Logger adapts slog to migrate.Logger.
type Logger struct {
	Logger *slog.Logger
	// Debug turns on golang-migrate's verbose output.
	Debug bool
}

func (l *Logger) Printf(format string, v ...any) {
	l.Logger.Info("migrations: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *Logger) Verbose() bool { return l.Debug }
