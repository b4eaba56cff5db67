package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	s := Default()

	if err := s.Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
	if s.Scheduler.MaxParallel != 4 {
		t.Errorf("expected max_parallel 4, got %d", s.Scheduler.MaxParallel)
	}
	if s.Cache.DefaultTTL != 24*time.Hour {
		t.Errorf("expected default TTL 24h, got %v", s.Cache.DefaultTTL)
	}
	if s.Cache.Backend != "file" {
		t.Errorf("expected file backend, got %s", s.Cache.Backend)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
cache:
  backend: sqlite
  sqlite_path: ~/state/cache.db
  default_ttl: 12h
scheduler:
  max_parallel: 8
  strict: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Cache.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %s", s.Cache.Backend)
	}
	if s.Cache.DefaultTTL != 12*time.Hour {
		t.Errorf("expected TTL 12h, got %v", s.Cache.DefaultTTL)
	}
	if !strings.HasSuffix(s.Cache.SQLitePath, filepath.Join("state", "cache.db")) || strings.HasPrefix(s.Cache.SQLitePath, "~") {
		t.Errorf("expected expanded sqlite path, got %s", s.Cache.SQLitePath)
	}
	if s.Scheduler.MaxParallel != 8 || !s.Scheduler.Strict {
		t.Errorf("unexpected scheduler settings: %+v", s.Scheduler)
	}
	if s.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", s.Logging.Level)
	}
	if s.Optimizer.MinAttempts != 2 {
		t.Errorf("expected untouched keys to keep defaults, got min_attempts %d", s.Optimizer.MinAttempts)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for explicit missing file")
	}

	s, err := Load("")
	if err != nil {
		t.Fatalf("expected missing default file to be ignored, got %v", err)
	}
	if s.Scheduler.MaxParallel != 4 {
		t.Errorf("expected defaults, got max_parallel %d", s.Scheduler.MaxParallel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero parallelism", "scheduler:\n  max_parallel: 0\n"},
		{"unknown backend", "cache:\n  backend: redis\n"},
		{"failure rate above one", "optimizer:\n  failure_rate_threshold: 1.5\n"},
		{"otlp without endpoint", "tracing:\n  exporter: otlp\n"},
		{"malformed yaml", "scheduler: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write settings: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	for k, v := range map[string]string{
		"DEVKIT_SCHEDULER__MAX_PARALLEL":           "6",
		"DEVKIT_CACHE__DEFAULT_TTL":                "90",
		"DEVKIT_CACHE__JANITOR_INTERVAL":           "5m",
		"DEVKIT_SCHEDULER__STRICT":                 "true",
		"DEVKIT_OPTIMIZER__FAILURE_RATE_THRESHOLD": "0.25",
		"DEVKIT_LOGGING__LEVEL":                    "warn",
		"DEVKIT_UNKNOWN__KEY":                      "ignored",
		"DEVKIT_CACHE__UNKNOWN":                    "ignored",
		"DEVKIT_NOSECTION":                         "ignored",
	} {
		t.Setenv(k, v)
	}

	s := Default()
	if err := s.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if s.Scheduler.MaxParallel != 6 {
		t.Errorf("expected max_parallel 6, got %d", s.Scheduler.MaxParallel)
	}
	if s.Cache.DefaultTTL != 90*time.Second {
		t.Errorf("expected TTL 90s, got %v", s.Cache.DefaultTTL)
	}
	if s.Cache.JanitorInterval != 5*time.Minute {
		t.Errorf("expected janitor interval 5m, got %v", s.Cache.JanitorInterval)
	}
	if !s.Scheduler.Strict {
		t.Error("expected strict mode")
	}
	if s.Optimizer.FailureRateThreshold != 0.25 {
		t.Errorf("expected failure rate 0.25, got %v", s.Optimizer.FailureRateThreshold)
	}
	if s.Logging.Level != "warn" {
		t.Errorf("expected warn level, got %s", s.Logging.Level)
	}
}

func TestApplyEnv_KeepsUnsetValues(t *testing.T) {
	t.Setenv("DEVKIT_LOGGING__FORMAT", "json")

	s := Default()
	want := *s
	want.Logging.Format = "json"

	if err := s.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if *s != want {
		t.Errorf("expected only logging.format to change, got %+v", *s)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DEVKIT_SCHEDULER__MAX_PARALLEL", "many"},
		{"DEVKIT_SCHEDULER__STRICT", "maybe"},
		{"DEVKIT_CACHE__DEFAULT_TTL", "-5"},
		{"DEVKIT_CACHE__DEFAULT_TTL", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if err := Default().ApplyEnv(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  max_parallel: 8\n"), 0o600); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}
	t.Setenv("DEVKIT_SCHEDULER__MAX_PARALLEL", "2")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Scheduler.MaxParallel != 2 {
		t.Errorf("expected environment to win, got %d", s.Scheduler.MaxParallel)
	}
}

func TestSettings_WriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	s := Default()
	s.Scheduler.MaxParallel = 3
	s.Cache.DefaultTTL = 6 * time.Hour
	if err := s.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	loaded := Default()
	if err := loaded.MergeFile(path); err != nil {
		t.Fatalf("MergeFile() error = %v", err)
	}
	if loaded.Scheduler.MaxParallel != 3 || loaded.Cache.DefaultTTL != 6*time.Hour {
		t.Errorf("unexpected settings after round trip: %+v", loaded)
	}
}

func TestSettings_Telemetry(t *testing.T) {
	s := Default()
	s.Logging.Level = "debug"
	s.Tracing.Enabled = true
	s.Tracing.Exporter = "stdout"

	cfg := s.Telemetry("1.2.3")
	if cfg.ServiceVersion != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", cfg.ServiceVersion)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("unexpected tracing config: %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid telemetry config, got %v", err)
	}
}
