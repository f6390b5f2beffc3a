package fluxnode

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/petrijr/fluxnode/pkg/flow"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid fluxnode config")

// DefaultEnvPrefix prefixes environment overrides, e.g. FLUXNODE_LOG_LEVEL.
const DefaultEnvPrefix = "FLUXNODE"

// Telemetry and registry backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendOTel     = "otel"
)

// Config is the runtime configuration. Fields carry a yaml key and an env
// suffix; nested env keys are joined with "_".
type Config struct {
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Flow      FlowConfig      `yaml:"flow" env:"FLOW"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Registry  RegistryConfig  `yaml:"registry" env:"REGISTRY"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is "console" or "json".
	Format      string `yaml:"format" env:"FORMAT"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

type FlowConfig struct {
	// MaxConcurrency bounds parallel batch adapters.
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// BlockingWorkers sizes the pool AsyncFlow runs sync units on.
	BlockingWorkers int `yaml:"blocking_workers" env:"BLOCKING_WORKERS"`
}

type TelemetryConfig struct {
	Backend       string        `yaml:"backend" env:"BACKEND"`
	DSN           string        `yaml:"dsn" env:"DSN"`
	Database      string        `yaml:"database" env:"DATABASE"`
	Prefix        string        `yaml:"prefix" env:"PREFIX"`
	BufferSize    int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
	BatchSize     int           `yaml:"batch_size" env:"BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
}

type RegistryConfig struct {
	Backend  string `yaml:"backend" env:"BACKEND"`
	DSN      string `yaml:"dsn" env:"DSN"`
	Database string `yaml:"database" env:"DATABASE"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

type LLMConfig struct {
	APIKey     string `yaml:"api_key" env:"API_KEY"`
	BaseURL    string `yaml:"base_url" env:"BASE_URL"`
	Model      string `yaml:"model" env:"MODEL"`
	MaxRetries int    `yaml:"max_retries" env:"MAX_RETRIES"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// DefaultConfig returns an in-process configuration: memory telemetry and
// registry, info-level console logging, no LLM.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Flow: FlowConfig{
			MaxConcurrency:  flow.DefaultMaxConcurrency,
			BlockingWorkers: 64,
		},
		Telemetry: TelemetryConfig{
			Backend:       BackendMemory,
			Prefix:        "fluxnode:",
			BufferSize:    1024,
			BatchSize:     64,
			FlushInterval: time.Second,
		},
		Registry: RegistryConfig{Backend: BackendMemory, Prefix: "fluxnode:"},
		LLM:      LLMConfig{MaxRetries: 2},
		Metrics:  MetricsConfig{Namespace: "fluxnode"},
	}
}

// Loader layers configuration: defaults, then the YAML file, then the .env
// file, then environment variables.
type Loader struct {
	configPath string
	dotEnvPath string
	envPrefix  string
}

func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithDotEnv loads path into the process environment before env overrides
// are read. Variables already set are not overwritten.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	if l.dotEnvPath != "" {
		if err := godotenv.Load(l.dotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", l.dotEnvPath, err)
		}
	}
	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadConfig loads path and an optional .env file next to the working
// directory, then applies FLUXNODE_ overrides.
func LoadConfig(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).WithDotEnv(".env").Load()
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate reports every problem at once, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log format must be console or json, got %q", c.Log.Format))
	}
	if c.Flow.MaxConcurrency < 1 {
		errs = append(errs, "flow.max_concurrency must be positive")
	}
	if c.Flow.BlockingWorkers < 1 {
		errs = append(errs, "flow.blocking_workers must be positive")
	}

	switch c.Telemetry.Backend {
	case BackendNone, BackendMemory, BackendOTel:
	case BackendSQLite, BackendPostgres, BackendRedis, BackendMongo:
		if c.Telemetry.DSN == "" {
			errs = append(errs, fmt.Sprintf("telemetry backend %q requires a dsn", c.Telemetry.Backend))
		}
		if c.Telemetry.BufferSize < 1 || c.Telemetry.BatchSize < 1 {
			errs = append(errs, "telemetry buffer_size and batch_size must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown telemetry backend %q", c.Telemetry.Backend))
	}

	switch c.Registry.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres, BackendRedis, BackendMongo:
		if c.Registry.DSN == "" {
			errs = append(errs, fmt.Sprintf("registry backend %q requires a dsn", c.Registry.Backend))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown registry backend %q", c.Registry.Backend))
	}

	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
