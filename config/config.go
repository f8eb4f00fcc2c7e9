// Package config parses process configuration from flags, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/Skryldev/mobile-boilerplate-api/db"
)

// Server is the configuration of the API server process.
type Server struct {
	Host        string   `help:"Interface to listen on; empty means all." env:"HOST"`
	Port        int      `help:"HTTP port." env:"PORT" default:"3000"`
	CORSOrigins []string `name:"cors-origin" help:"Allowed CORS origins." env:"CORS_ORIGIN" default:"*" sep:","`
	AutoMigrate bool     `help:"Apply embedded migrations before serving." env:"AUTO_MIGRATE"`

	Log       Log       `embed:"" prefix:"log-"`
	Database  Database  `embed:""`
	Telemetry Telemetry `embed:"" prefix:"otel-"`
}

// Addr is the listen address, e.g. ":3000".
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Log selects the slog handler.
type Log struct {
	Level  string `help:"Minimum log level." env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	Format string `help:"Log output format." env:"LOG_FORMAT" default:"json" enum:"json,text"`
}

// Logger builds a slog.Logger writing to w.
func (l Log) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Database describes the connection pool. When URL is empty the DSN is built
// from the discrete fields through the driver registry.
type Database struct {
	Driver   string `name:"database-driver" help:"database/sql driver." env:"DATABASE_DRIVER" default:"pgx" enum:"pgx,postgres,mysql,sqlite3"`
	URL      string `name:"database-url" help:"Full DSN; overrides the db-* fields." env:"DATABASE_URL"`
	Host     string `name:"db-host" env:"DB_HOST" default:"localhost"`
	Port     int    `name:"db-port" help:"Zero selects the driver default." env:"DB_PORT"`
	User     string `name:"db-user" env:"DB_USER" default:"postgres"`
	Password string `name:"db-password" env:"DB_PASSWORD" default:"password"`
	Name     string `name:"db-name" help:"Database name, or file path for sqlite3." env:"DB_NAME" default:"mobile_boilerplate"`
	SSLMode  string `name:"db-sslmode" env:"DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `name:"db-max-open-conns" env:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `name:"db-max-idle-conns" env:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `name:"db-conn-max-lifetime" env:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `name:"db-conn-max-idle-time" env:"DB_CONN_MAX_IDLE_TIME" default:"2m"`

	SlowQuery time.Duration `name:"db-slow-query" help:"Log statements slower than this as warnings." env:"DB_SLOW_QUERY" default:"200ms"`
	LogArgs   bool          `name:"db-log-args" help:"Include bound parameters in query logs." env:"DB_LOG_ARGS"`

	ConnectAttempts int           `name:"db-connect-attempts" help:"Connection attempts at startup." env:"DB_CONNECT_ATTEMPTS" default:"5"`
	ConnectDelay    time.Duration `name:"db-connect-delay" env:"DB_CONNECT_DELAY" default:"2s"`
}

// Options returns the discrete connection fields in driver-agnostic form.
func (d Database) Options() db.DriverOptions {
	return db.DriverOptions{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Name,
		SSLMode:  d.SSLMode,
	}
}

// DSN returns URL when set, otherwise the DSN built by the registered driver.
func (d Database) DSN() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	drv, err := db.LookupDriver(d.Driver)
	if err != nil {
		return "", err
	}
	dsn, err := drv.DSN(d.Options())
	if err != nil {
		return "", fmt.Errorf("config: build DSN: %w", err)
	}
	return dsn, nil
}

// DBConfig maps the pool settings onto db.Config.
func (d Database) DBConfig(hooks ...db.Hook) (db.Config, error) {
	dsn, err := d.DSN()
	if err != nil {
		return db.Config{}, err
	}
	return db.Config{
		DSN:             dsn,
		DriverName:      d.Driver,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		Hooks:           hooks,
	}, nil
}

// LogHook returns the structured query logger for this pool.
func (d Database) LogHook(logger *slog.Logger) db.Hook {
	return db.NewLogHook(db.LogHookConfig{
		Logger:             logger,
		SlowQueryThreshold: d.SlowQuery,
		LogArgs:            d.LogArgs,
	})
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Endpoint    string `help:"OTLP gRPC collector address; empty disables export." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool   `help:"Use plaintext gRPC to the collector." env:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	ServiceName string `help:"Reported service name." env:"OTEL_SERVICE_NAME" default:"mobile-boilerplate-api"`
}

// LoadDotEnv loads the given files (".env" when none) into the environment.
// Variables that are already set win, and missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Parse loads .env and parses args into a Server configuration.
func Parse(args []string, options ...kong.Option) (*Server, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := new(Server)
	options = append([]kong.Option{
		kong.Name("mobile-boilerplate-api"),
		kong.Description("Users CRUD API for the mobile boilerplate."),
	}, options...)
	parser, err := kong.New(cfg, options...)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}
