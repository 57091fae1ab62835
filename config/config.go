// Package config loads the processd server configuration from a YAML
// file and PROCESSES_* environment variables. Environment variables win
// over the file; the file wins over defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/processes"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBun      = "bun"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROCESSES_"

// Config is the processd server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// BaseURL prefixes links in API documents. Empty means host-relative.
	BaseURL string `yaml:"base_url"`
	// Audit logs an audit record for every job lifecycle event.
	Audit bool `yaml:"audit"`

	Log    LogConfig        `yaml:"log"`
	Store  StoreConfig      `yaml:"store"`
	NATS   NATSConfig       `yaml:"nats"`
	Engine processes.Config `yaml:"engine"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StoreConfig selects and addresses the job store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a connection URL for postgres, bun, redis and mongo, or a
	// file path for sqlite.
	DSN string `yaml:"dsn"`
	// Database names the mongo database.
	Database string `yaml:"database"`
	// Migrate runs schema migrations at startup.
	Migrate bool `yaml:"migrate"`
}

// NATSConfig enables lifecycle notifications. Empty URL disables them.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns a configuration that runs on the memory store.
func Default() Config {
	return Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Driver:   DriverMemory,
			Database: "processes",
			Migrate:  true,
		},
		NATS:   NATSConfig{SubjectPrefix: "processes"},
		Engine: processes.DefaultConfig(),
	}
}

// Load reads path (if not empty) and applies environment overrides from
// the process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to
// defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverBun, DriverSQLite, DriverRedis, DriverMongo:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store driver %q needs a dsn", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == DriverMongo && c.Store.Database == "" {
		errs = append(errs, errors.New("mongo store needs a database"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Engine.Concurrency < 0 || c.Engine.QueueSize < 0 {
		errs = append(errs, errors.New("engine concurrency and queue size must not be negative"))
	}
	if c.Engine.LeaseTimeout > 0 && c.Engine.HeartbeatInterval >= c.Engine.LeaseTimeout {
		errs = append(errs, errors.New("engine heartbeat interval must be shorter than the lease timeout"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds the slog logger described by Log.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// ──────────────────────────────────────────────────
// Environment overrides
// ──────────────────────────────────────────────────

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.str("LISTEN", &cfg.Listen)
	env.str("BASE_URL", &cfg.BaseURL)
	env.boolean("AUDIT", &cfg.Audit)
	env.str("LOG_LEVEL", &cfg.Log.Level)
	env.str("LOG_FORMAT", &cfg.Log.Format)
	env.str("STORE_DRIVER", &cfg.Store.Driver)
	env.str("STORE_DSN", &cfg.Store.DSN)
	env.str("STORE_DATABASE", &cfg.Store.Database)
	env.boolean("STORE_MIGRATE", &cfg.Store.Migrate)
	env.str("NATS_URL", &cfg.NATS.URL)
	env.str("NATS_SUBJECT_PREFIX", &cfg.NATS.SubjectPrefix)

	e := &cfg.Engine
	env.integer("CONCURRENCY", &e.Concurrency)
	env.integer("QUEUE_SIZE", &e.QueueSize)
	env.duration("POLL_INTERVAL", &e.PollInterval)
	env.duration("SYNC_TIMEOUT", &e.SyncTimeout)
	env.duration("DISMISS_GRACE", &e.DismissGrace)
	env.duration("HEARTBEAT_INTERVAL", &e.HeartbeatInterval)
	env.duration("LEASE_TIMEOUT", &e.LeaseTimeout)
	env.duration("RETENTION", &e.Retention)
	env.str("GC_SCHEDULE", &e.GCSchedule)
	env.duration("SHUTDOWN_TIMEOUT", &e.ShutdownTimeout)

	if len(env.errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(env.errs...))
	}
	return nil
}

// envReader collects parse errors so every bad variable is reported at
// once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(name string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.get(name); ok {
		*dst = v
	}
}

func (r *envReader) integer(name string, dst *int) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = n
}

func (r *envReader) boolean(name string, dst *bool) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = b
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = d
}
