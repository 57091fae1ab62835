package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xraph/processes/config"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.LoadWithEnv("", env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", cfg.Listen)
	}
	if cfg.Store.Driver != config.DriverMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Engine.Concurrency != 8 || cfg.Engine.SyncTimeout != 30*time.Second {
		t.Errorf("Engine = %+v, want defaults", cfg.Engine)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
listen: ":9090"
base_url: https://example.com/ogc
log:
  level: debug
  format: json
store:
  driver: postgres
  dsn: postgres://localhost/processes
nats:
  url: nats://localhost:4222
engine:
  concurrency: 2
  sync_timeout: 5s
  retention: 1h
`)
	cfg, err := config.LoadWithEnv(path, env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.BaseURL != "https://example.com/ogc" {
		t.Errorf("server: got %q %q", cfg.Listen, cfg.BaseURL)
	}
	if cfg.Store.Driver != config.DriverPostgres || cfg.Store.DSN != "postgres://localhost/processes" {
		t.Errorf("store: got %+v", cfg.Store)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats: got %+v", cfg.NATS)
	}
	if cfg.Engine.Concurrency != 2 || cfg.Engine.SyncTimeout != 5*time.Second || cfg.Engine.Retention != time.Hour {
		t.Errorf("engine: got %+v", cfg.Engine)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Engine.QueueSize != 256 || cfg.Engine.GCSchedule != "@every 1m" {
		t.Errorf("engine defaults lost: got %+v", cfg.Engine)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "listen: \":9090\"\nengine:\n  concurrency: 2\n")
	cfg, err := config.LoadWithEnv(path, env(map[string]string{
		"PROCESSES_LISTEN":       ":7070",
		"PROCESSES_CONCURRENCY":  "16",
		"PROCESSES_STORE_DRIVER": "redis",
		"PROCESSES_STORE_DSN":    "redis://localhost:6379/0",
		"PROCESSES_RETENTION":    "72h",
		"PROCESSES_GC_SCHEDULE":  "@hourly",
		"PROCESSES_BASE_URL":     "   ",
		"PROCESSES_AUDIT":        "true",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("Listen = %q, want :7070", cfg.Listen)
	}
	if cfg.Engine.Concurrency != 16 {
		t.Errorf("Concurrency = %d, want 16", cfg.Engine.Concurrency)
	}
	if cfg.Store.Driver != config.DriverRedis {
		t.Errorf("Driver = %q, want redis", cfg.Store.Driver)
	}
	if cfg.Engine.Retention != 72*time.Hour || cfg.Engine.GCSchedule != "@hourly" {
		t.Errorf("engine: got %+v", cfg.Engine)
	}
	if !cfg.Audit {
		t.Error("Audit = false, want true")
	}
	if cfg.BaseURL != "" {
		t.Errorf("blank env var should be ignored, got BaseURL %q", cfg.BaseURL)
	}
}

func TestLoad_InvalidEnvReportsEveryVariable(t *testing.T) {
	_, err := config.LoadWithEnv("", env(map[string]string{
		"PROCESSES_CONCURRENCY":  "lots",
		"PROCESSES_SYNC_TIMEOUT": "soon",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"PROCESSES_CONCURRENCY", "PROCESSES_SYNC_TIMEOUT"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeFile(t, "listen: \":9090\"\nconcurency: 2\n")
	if _, err := config.LoadWithEnv(path, env(nil)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), env(nil)); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := config.LoadWithEnv(writeFile(t, ""), env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want default", cfg.Listen)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "cassandra" }},
		{"missing dsn", func(c *config.Config) { c.Store.Driver = config.DriverPostgres }},
		{"mongo without database", func(c *config.Config) {
			c.Store.Driver = config.DriverMongo
			c.Store.DSN = "mongodb://localhost"
			c.Store.Database = ""
		}},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }},
		{"empty listen", func(c *config.Config) { c.Listen = "" }},
		{"heartbeat after lease", func(c *config.Config) {
			c.Engine.HeartbeatInterval = time.Minute
			c.Engine.LeaseTimeout = time.Second
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "job_id", "job_1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("missing json record: %s", out)
	}
}
