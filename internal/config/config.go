package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configuration.yaml"

// Settings holds all configuration for the service.
type Settings struct {
	Application ApplicationSettings `yaml:"application"`
	Database    DatabaseSettings    `yaml:"database"`
	Log         LogSettings         `yaml:"log"`
	Tracing     TracingSettings     `yaml:"tracing"`
	Storage     StorageSettings     `yaml:"storage"`
}

type ApplicationSettings struct {
	Name            string `yaml:"name"`
	Version         string `yaml:"version"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_seconds"`
	GinMode         string `yaml:"gin_mode"`
}

// Address returns host:port for the listener.
func (a ApplicationSettings) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a ApplicationSettings) ShutdownGrace() time.Duration {
	return time.Duration(a.ShutdownTimeout) * time.Second
}

type DatabaseSettings struct {
	// URL, when set, is used verbatim instead of the individual fields.
	URL                    string `yaml:"url"`
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	Username               string `yaml:"username"`
	Password               string `yaml:"password"`
	DatabaseName           string `yaml:"database_name"`
	RequireSSL             bool   `yaml:"require_ssl"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// ConnectionString returns the libpq URL for the configured database.
func (d DatabaseSettings) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	return d.urlFor(d.DatabaseName)
}

// ConnectionStringWithoutDB targets the server's maintenance database, for
// creating and dropping databases.
func (d DatabaseSettings) ConnectionStringWithoutDB() string {
	if d.URL != "" {
		u, err := url.Parse(d.URL)
		if err == nil {
			u.Path = "/postgres"
			return u.String()
		}
	}
	return d.urlFor("postgres")
}

// WithDatabase returns a copy pointing at name.
func (d DatabaseSettings) WithDatabase(name string) DatabaseSettings {
	if d.URL != "" {
		if u, err := url.Parse(d.URL); err == nil {
			u.Path = "/" + name
			d.URL = u.String()
		}
	}
	d.DatabaseName = name
	return d
}

func (d DatabaseSettings) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeSeconds) * time.Second
}

func (d DatabaseSettings) urlFor(name string) string {
	sslMode := "disable"
	if d.RequireSSL {
		sslMode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingSettings struct {
	// Exporter is "stdout" or "none".
	Exporter string `yaml:"exporter"`
}

type StorageSettings struct {
	// Backend is "postgres", "dapr" or "memory".
	Backend   string `yaml:"backend"`
	DaprStore string `yaml:"dapr_store"`
}

const (
	BackendPostgres = "postgres"
	BackendDapr     = "dapr"
	BackendMemory   = "memory"
)

// Default returns built-in defaults.
func Default() Settings {
	return Settings{
		Application: ApplicationSettings{
			Name:            "newsletter",
			Version:         "0.1.0",
			Host:            "127.0.0.1",
			Port:            8000,
			ShutdownTimeout: 30,
		},
		Database: DatabaseSettings{
			Host:                   "localhost",
			Port:                   5432,
			Username:               "postgres",
			Password:               "password",
			DatabaseName:           "newsletter",
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		Log:     LogSettings{Level: "info", Format: "json"},
		Tracing: TracingSettings{Exporter: "stdout"},
		Storage: StorageSettings{Backend: BackendPostgres, DaprStore: "statestore"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Settings, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	return &cfg, nil
}

// LoadFromEnv loads .env (if present), then path, then applies environment
// variable overrides and validates the result.
func LoadFromEnv(path string) (*Settings, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Settings) applyEnv() error {
	setString(&s.Application.Host, "APP_HOST")
	setString(&s.Application.GinMode, "GIN_MODE")
	setString(&s.Database.URL, "DATABASE_URL")
	setString(&s.Database.Host, "DATABASE_HOST")
	setString(&s.Database.Username, "DATABASE_USERNAME")
	setString(&s.Database.Password, "DATABASE_PASSWORD")
	setString(&s.Database.DatabaseName, "DATABASE_NAME")
	setString(&s.Log.Level, "LOG_LEVEL")
	setString(&s.Log.Format, "LOG_FORMAT")
	setString(&s.Tracing.Exporter, "TRACING_EXPORTER")
	setString(&s.Storage.Backend, "STORAGE_BACKEND")
	setString(&s.Storage.DaprStore, "DAPR_STORE")

	if err := setInt(&s.Application.Port, "APP_PORT"); err != nil {
		return err
	}
	if err := setInt(&s.Database.Port, "DATABASE_PORT"); err != nil {
		return err
	}
	if v := os.Getenv("DATABASE_REQUIRE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DATABASE_REQUIRE_SSL: %w", err)
		}
		s.Database.RequireSSL = b
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (s *Settings) Validate() error {
	switch s.Storage.Backend {
	case BackendPostgres, BackendDapr, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", s.Storage.Backend)
	}
	switch s.Tracing.Exporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("unknown trace exporter %q", s.Tracing.Exporter)
	}
	switch s.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", s.Log.Format)
	}
	if s.Application.Port < 0 || s.Application.Port > 65535 {
		return fmt.Errorf("invalid application port %d", s.Application.Port)
	}
	if s.Storage.Backend == BackendDapr && s.Storage.DaprStore == "" {
		return errors.New("dapr backend requires storage.dapr_store")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
