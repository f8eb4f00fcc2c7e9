// Command migrate manages the database schema and development fixtures.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/golang-migrate/migrate/v4"

	"github.com/Skryldev/mobile-boilerplate-api/config"
	"github.com/Skryldev/mobile-boilerplate-api/db"
	"github.com/Skryldev/mobile-boilerplate-api/migrations"
	"github.com/Skryldev/mobile-boilerplate-api/seed"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Command struct {
	Verbose  bool            `help:"Print golang-migrate's verbose output." short:"v"`
	Log      config.Log      `embed:"" prefix:"log-"`
	Database config.Database `embed:""`

	Up      UpCommand      `cmd:"" help:"Apply all pending migrations."`
	Down    DownCommand    `cmd:"" help:"Roll back N migrations."`
	Version VersionCommand `cmd:"" help:"Print the current migration version."`
	Force   ForceCommand   `cmd:"" help:"Set the migration version without running it (clears dirty state)."`
	Drop    DropCommand    `cmd:"" help:"Drop every table (development only)."`
	Seed    SeedCommand    `cmd:"" help:"Replace all users with the bundled fixtures."`
}

// App is handed to every subcommand's Run.
type App struct {
	Verbose  bool
	Database config.Database
	Logger   *slog.Logger
}

func (a *App) migrate() (*migrate.Migrate, error) {
	dsn, err := a.Database.DSN()
	if err != nil {
		return nil, err
	}
	m, err := migrations.New(a.Database.Driver, dsn)
	if err != nil {
		return nil, err
	}
	m.Log = &migrations.Logger{Logger: a.Logger, Debug: a.Verbose}
	return m, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	command := new(Command)
	ctx := kong.Parse(
		command,
		kong.Name("migrate"),
		kong.Description("Schema migrations and seed data for the mobile boilerplate API."),
	)

	logger := command.Log.Logger(os.Stderr)
	slog.SetDefault(logger)

	err := ctx.Run(&App{
		Verbose:  command.Verbose,
		Database: command.Database,
		Logger:   logger,
	})
	ctx.FatalIfErrorf(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Schema
// ─────────────────────────────────────────────────────────────────────────────

type UpCommand struct{}

func (c *UpCommand) Run(app *App) error {
	m, err := app.migrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("up failed: %w", err)
	}
	app.Logger.Info("migrations: up completed")
	return nil
}

type DownCommand struct {
	Steps int `arg:"" optional:"" default:"1" help:"Number of migrations to roll back."`
}

func (c *DownCommand) Run(app *App) error {
	if c.Steps < 1 {
		return fmt.Errorf("down: invalid steps %d", c.Steps)
	}
	m, err := app.migrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-c.Steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("down failed: %w", err)
	}
	app.Logger.Info("migrations: down completed", "steps", c.Steps)
	return nil
}

type VersionCommand struct{}

func (c *VersionCommand) Run(app *App) error {
	m, err := app.migrate()
	if err != nil {
		return err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("version: none")
		return nil
	}
	if err != nil {
		return fmt.Errorf("version failed: %w", err)
	}
	fmt.Printf("version: %d  dirty: %v\n", v, dirty)
	return nil
}

type ForceCommand struct {
	Version int `arg:"" help:"Version to record."`
}

func (c *ForceCommand) Run(app *App) error {
	m, err := app.migrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(c.Version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	app.Logger.Info("migrations: forced", "version", c.Version)
	return nil
}

type DropCommand struct {
	Yes bool `help:"Skip the confirmation prompt."`
}

func (c *DropCommand) Run(app *App) error {
	if !c.Yes {
		fmt.Fprintln(os.Stderr, "WARNING: drop will destroy all tables. Type 'yes' to confirm:")
		var confirm string
		_, _ = fmt.Scanln(&confirm)
		if confirm != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}
	m, err := app.migrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Drop(); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}
	app.Logger.Info("migrations: all tables dropped")
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Seed
// ─────────────────────────────────────────────────────────────────────────────

type SeedCommand struct{}

func (c *SeedCommand) Run(app *App) error {
	fixtures, err := seed.Load()
	if err != nil {
		return err
	}
	cfg, err := app.Database.DBConfig(app.Database.LogHook(app.Logger))
	if err != nil {
		return err
	}
	database, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	users, err := seed.Run(context.Background(), database, fixtures)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("%d\t%s <%s>\n", u.ID, u.Name, u.Email)
	}
	return nil
}
