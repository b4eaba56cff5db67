package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/devkit/devkit/pkg/telemetry"
)

// EnvPrefix prefixes environment overrides. Sections and keys are separated
// by a double underscore: DEVKIT_CACHE__DEFAULT_TTL=12h.
const EnvPrefix = "DEVKIT"

// Settings is the devkit configuration file.
type Settings struct {
	Cache     CacheSettings     `yaml:"cache" json:"cache"`
	Scheduler SchedulerSettings `yaml:"scheduler" json:"scheduler"`
	Optimizer OptimizerSettings `yaml:"optimizer" json:"optimizer"`
	Logging   LoggingSettings   `yaml:"logging" json:"logging"`
	Tracing   TracingSettings   `yaml:"tracing" json:"tracing"`
}

// CacheSettings selects and tunes the cache backend.
type CacheSettings struct {
	// Backend is one of memory, file or sqlite.
	Backend string `yaml:"backend" json:"backend" validate:"oneof=memory file sqlite"`

	// Dir holds the file backend entries.
	Dir string `yaml:"dir" json:"dir" validate:"required_if=Backend file"`

	// SQLitePath is the sqlite backend database file.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path" validate:"required_if=Backend sqlite"`

	DefaultTTL      time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"gte=0s"`
	EntryThreshold  int           `yaml:"entry_threshold" json:"entry_threshold" validate:"gte=1"`
	JanitorInterval time.Duration `yaml:"janitor_interval" json:"janitor_interval" validate:"gte=0s"`
}

// SchedulerSettings tunes wave planning and execution.
type SchedulerSettings struct {
	MaxParallel int           `yaml:"max_parallel" json:"max_parallel" validate:"gte=1"`
	Strict      bool          `yaml:"strict" json:"strict"`
	DefaultCost time.Duration `yaml:"default_cost" json:"default_cost" validate:"gte=0s"`
}

// OptimizerSettings tunes suggestion thresholds.
type OptimizerSettings struct {
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" json:"failure_rate_threshold" validate:"gte=0,lte=1"`
	SlowThreshold        time.Duration `yaml:"slow_threshold" json:"slow_threshold" validate:"gte=0s"`
	MinAttempts          int           `yaml:"min_attempts" json:"min_attempts" validate:"gte=1"`

	// PolicyDir holds custom advisory policies. Empty disables them.
	PolicyDir string `yaml:"policy_dir" json:"policy_dir"`
}

// LoggingSettings configures the logger.
type LoggingSettings struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
}

// TracingSettings configures OpenTelemetry tracing.
type TracingSettings struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Exporter string `yaml:"exporter" json:"exporter" validate:"oneof=stdout otlp none"`
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"required_if=Exporter otlp"`
}

// Home returns the devkit state directory, ~/.devkit.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devkit"
	}
	return filepath.Join(home, ".devkit")
}

// DefaultPath returns the default settings file, ~/.devkit/config.yaml.
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Cache: CacheSettings{
			Backend:         "file",
			Dir:             filepath.Join(Home(), "cache"),
			SQLitePath:      filepath.Join(Home(), "cache.db"),
			DefaultTTL:      24 * time.Hour,
			EntryThreshold:  100,
			JanitorInterval: 0,
		},
		Scheduler: SchedulerSettings{
			MaxParallel: 4,
			DefaultCost: 30 * time.Second,
		},
		Optimizer: OptimizerSettings{
			FailureRateThreshold: 0.5,
			SlowThreshold:        30 * time.Second,
			MinAttempts:          2,
			PolicyDir:            filepath.Join(Home(), "policies"),
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "console",
		},
		Tracing: TracingSettings{
			Exporter: "none",
		},
	}
}

// Load reads settings from path, applies environment overrides and
// validates the result. An empty path reads DefaultPath, which may be
// missing; an explicit path must exist.
func Load(path string) (*Settings, error) {
	s := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if err := s.MergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}

	s.expandPaths()

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// MergeFile overlays the YAML file at path onto s. Keys absent from the file
// keep their current values.
func (s *Settings) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	return nil
}

// Validate checks the settings against their struct tags.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Telemetry builds the telemetry configuration for these settings.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Logging.Level = s.Logging.Level
	cfg.Logging.Format = s.Logging.Format
	cfg.Tracing.Enabled = s.Tracing.Enabled && s.Tracing.Exporter != "none"
	cfg.Tracing.Exporter = s.Tracing.Exporter
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	return cfg
}

// Write saves the settings as YAML, creating the parent directory.
func (s *Settings) Write(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (s *Settings) expandPaths() {
	s.Cache.Dir = expandHome(s.Cache.Dir)
	s.Cache.SQLitePath = expandHome(s.Cache.SQLitePath)
	s.Optimizer.PolicyDir = expandHome(s.Optimizer.PolicyDir)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
