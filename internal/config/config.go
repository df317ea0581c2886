// Package config loads the warden configuration: a YAML file, overlaid by
// WARDEN_* environment variables, on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/triage-ai/warden/internal/action"
	"github.com/triage-ai/warden/internal/engine"
	"github.com/triage-ai/warden/internal/engine/detectors"
	"github.com/triage-ai/warden/internal/queue"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Storage backend names accepted in storage.backends.
const (
	BackendLog        = "log"
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
	BackendKafka      = "kafka"
)

var knownBackends = []string{BackendLog, BackendSQLite, BackendClickHouse, BackendPostgres, BackendKafka}

// Config is the full service configuration.
type Config struct {
	Enabled             bool                `yaml:"enabled"`
	EarlyExitOnCritical bool                `yaml:"early_exit_on_critical"`
	CacheSize           int                 `yaml:"cache_size"`
	CacheTTLMs          int                 `yaml:"cache_ttl_ms"`
	ModuleTimeoutMs     int                 `yaml:"module_timeout_ms"`
	EntropyThreshold    float64             `yaml:"entropy_threshold"`
	FastModules         []string            `yaml:"fast_modules"`
	Modules             engine.ModulePolicy `yaml:"modules"`
	// GitleaksRules adds the gitleaks rule set to secret_detector.
	GitleaksRules bool `yaml:"gitleaks_rules"`

	Actions        ActionsConfig        `yaml:"actions"`
	Queue          QueueConfig          `yaml:"queue"`
	Storage        StorageConfig        `yaml:"storage"`
	Notify         NotifyConfig         `yaml:"notify"`
	RemoteDetector RemoteDetectorConfig `yaml:"remote_detector"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LogLevel       string               `yaml:"log_level"`
}

type ActionsConfig struct {
	RepeatOffenderThreshold int           `yaml:"repeat_offender_threshold"`
	ViolationWindow         time.Duration `yaml:"violation_window"`
	FloodRatePerSecond      float64       `yaml:"flood_rate_per_second"`
	FloodBurst              int           `yaml:"flood_burst"`
	// Overrides maps a severity name to the action it should produce.
	Overrides map[string]string `yaml:"overrides"`
}

type QueueConfig struct {
	BatchSize       int    `yaml:"batch_size"`
	FlushIntervalMs int    `yaml:"flush_interval_ms"`
	Capacity        int    `yaml:"capacity"`
	Overflow        string `yaml:"overflow"`
	MaxRetries      int    `yaml:"max_retries"`
}

type StorageConfig struct {
	Backends      []string    `yaml:"backends"`
	SQLitePath    string      `yaml:"sqlite_path"`
	ClickHouseDSN string      `yaml:"clickhouse_dsn"`
	PostgresDSN   string      `yaml:"postgres_dsn"`
	Kafka         KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NotifyConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig enables MQTT alert delivery when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// RemoteDetectorConfig enables the gRPC classifier module when Endpoint is set.
type RemoteDetectorConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	Method    string  `yaml:"method"`
	TimeoutMs int     `yaml:"timeout_ms"`
	Threshold float64 `yaml:"threshold"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	// APIKeyHashes are bcrypt hashes of accepted API keys. Empty disables
	// authentication.
	APIKeyHashes []string `yaml:"api_key_hashes"`
	// PostgresAPIKeys verifies keys against the api_keys table instead.
	PostgresAPIKeys bool `yaml:"postgres_api_keys"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file or environment
// variable says otherwise.
func Default() *Config {
	qd := queue.DefaultConfig()
	ad := action.DefaultPolicy()
	return &Config{
		Enabled:          true,
		CacheSize:        engine.DefaultCacheSize,
		CacheTTLMs:       int(engine.DefaultCacheTTL / time.Millisecond),
		ModuleTimeoutMs:  int(engine.DefaultModuleTimeout / time.Millisecond),
		EntropyThreshold: engine.DefaultEntropyThreshold,
		FastModules:      slices.Clone(engine.DefaultFastModules),
		Modules:          engine.ModulePolicy{},
		GitleaksRules:    true,
		Actions: ActionsConfig{
			RepeatOffenderThreshold: ad.RepeatOffenderThreshold,
			ViolationWindow:         ad.ViolationWindow,
			FloodRatePerSecond:      float64(ad.FloodRate),
			FloodBurst:              ad.FloodBurst,
		},
		Queue: QueueConfig{
			BatchSize:       qd.BatchSize,
			FlushIntervalMs: int(qd.FlushInterval / time.Millisecond),
			Capacity:        qd.Capacity,
			Overflow:        qd.Overflow.String(),
			MaxRetries:      qd.MaxRetries,
		},
		Storage: StorageConfig{
			Backends: []string{BackendLog},
			Kafka:    KafkaConfig{Topic: "warden.security_events"},
		},
		Notify: NotifyConfig{
			MQTT: MQTTConfig{Topic: "warden/alerts", ClientID: "warden"},
		},
		RemoteDetector: RemoteDetectorConfig{
			Method:    detectors.DefaultClassifierMethod,
			TimeoutMs: int(detectors.DefaultClassifierTimeout / time.Millisecond),
			Threshold: detectors.DefaultClassifierThreshold,
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":9090",
		},
		Telemetry: TelemetryConfig{ServiceName: "warden"},
		LogLevel:  "info",
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
		}
	}
	applyEnv(cfg)
	if cfg.Modules == nil {
		cfg.Modules = engine.ModulePolicy{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.CacheSize <= 0 {
		bad("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.CacheTTLMs <= 0 {
		bad("cache_ttl_ms must be positive, got %d", c.CacheTTLMs)
	}
	if c.ModuleTimeoutMs <= 0 {
		bad("module_timeout_ms must be positive, got %d", c.ModuleTimeoutMs)
	}
	if c.EntropyThreshold <= 0 {
		bad("entropy_threshold must be positive, got %g", c.EntropyThreshold)
	}
	for _, name := range c.FastModules {
		if !knownModule(name) {
			bad("fast_modules: unknown module %q", name)
		}
	}
	for name := range c.Modules {
		if !knownModule(name) {
			bad("modules: unknown module %q", name)
		}
	}

	if c.Actions.RepeatOffenderThreshold <= 0 {
		bad("actions.repeat_offender_threshold must be positive")
	}
	if c.Actions.ViolationWindow <= 0 {
		bad("actions.violation_window must be positive")
	}
	if c.Actions.FloodRatePerSecond < 0 || c.Actions.FloodBurst < 0 {
		bad("actions.flood_rate_per_second and flood_burst must not be negative")
	}
	if _, err := c.overrides(); err != nil {
		errs = append(errs, err)
	}

	if c.Queue.BatchSize <= 0 || c.Queue.Capacity <= 0 || c.Queue.FlushIntervalMs <= 0 {
		bad("queue.batch_size, capacity and flush_interval_ms must be positive")
	}
	if c.Queue.BatchSize > c.Queue.Capacity {
		bad("queue.batch_size %d exceeds capacity %d", c.Queue.BatchSize, c.Queue.Capacity)
	}
	if _, err := queue.ParseOverflowPolicy(c.Queue.Overflow); err != nil {
		errs = append(errs, err)
	}
	if c.Queue.MaxRetries < 0 {
		bad("queue.max_retries must not be negative")
	}

	for _, b := range c.Storage.Backends {
		switch b {
		case BackendSQLite:
			if c.Storage.SQLitePath == "" {
				bad("storage: sqlite backend requires sqlite_path")
			}
		case BackendClickHouse:
			if c.Storage.ClickHouseDSN == "" {
				bad("storage: clickhouse backend requires clickhouse_dsn")
			}
		case BackendPostgres:
			if c.Storage.PostgresDSN == "" {
				bad("storage: postgres backend requires postgres_dsn")
			}
		case BackendKafka:
			if len(c.Storage.Kafka.Brokers) == 0 || c.Storage.Kafka.Topic == "" {
				bad("storage: kafka backend requires kafka.brokers and kafka.topic")
			}
		case BackendLog:
		default:
			bad("storage: unknown backend %q (want one of %s)", b, strings.Join(knownBackends, ", "))
		}
	}

	if c.Notify.MQTT.Broker != "" && c.Notify.MQTT.Topic == "" {
		bad("notify.mqtt.topic is required when a broker is set")
	}
	if c.RemoteDetector.Endpoint != "" {
		if c.RemoteDetector.TimeoutMs <= 0 {
			bad("remote_detector.timeout_ms must be positive")
		}
		if c.RemoteDetector.Threshold <= 0 || c.RemoteDetector.Threshold > 1 {
			bad("remote_detector.threshold must be in (0, 1], got %g", c.RemoteDetector.Threshold)
		}
	}
	if c.Server.HTTPAddr == "" {
		bad("server.http_addr is required")
	}
	if c.Server.PostgresAPIKeys && c.Storage.PostgresDSN == "" {
		bad("server.postgres_api_keys requires storage.postgres_dsn")
	}
	if c.Server.PostgresAPIKeys && len(c.Server.APIKeyHashes) > 0 {
		bad("server.postgres_api_keys and server.api_key_hashes are mutually exclusive")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		bad("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func knownModule(name string) bool {
	return name == detectors.ModuleRemoteClassifier || slices.Contains(detectors.Names, name)
}

// CacheTTL returns cache_ttl_ms as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

// ModuleTimeout returns module_timeout_ms as a duration.
func (c *Config) ModuleTimeout() time.Duration {
	return time.Duration(c.ModuleTimeoutMs) * time.Millisecond
}

// QueueConfig converts the queue section. The overflow policy has already
// been validated.
func (c *Config) QueueConfig() queue.Config {
	overflow, _ := queue.ParseOverflowPolicy(c.Queue.Overflow)
	qc := queue.DefaultConfig()
	qc.BatchSize = c.Queue.BatchSize
	qc.FlushInterval = time.Duration(c.Queue.FlushIntervalMs) * time.Millisecond
	qc.Capacity = c.Queue.Capacity
	qc.Overflow = overflow
	qc.MaxRetries = c.Queue.MaxRetries
	return qc
}

// ActionPolicy converts the actions section.
func (c *Config) ActionPolicy() (action.Policy, error) {
	overrides, err := c.overrides()
	if err != nil {
		return action.Policy{}, err
	}
	p := action.DefaultPolicy()
	p.RepeatOffenderThreshold = c.Actions.RepeatOffenderThreshold
	p.ViolationWindow = c.Actions.ViolationWindow
	p.FloodRate = rate.Limit(c.Actions.FloodRatePerSecond)
	p.FloodBurst = c.Actions.FloodBurst
	p.Overrides = overrides
	return p, nil
}

func (c *Config) overrides() (map[engine.Severity]engine.Action, error) {
	if len(c.Actions.Overrides) == 0 {
		return nil, nil
	}
	out := make(map[engine.Severity]engine.Action, len(c.Actions.Overrides))
	for s, a := range c.Actions.Overrides {
		sev, err := engine.ParseSeverity(s)
		if err != nil {
			return nil, fmt.Errorf("actions.overrides: %w", err)
		}
		act, err := engine.ParseAction(a)
		if err != nil {
			return nil, fmt.Errorf("actions.overrides[%s]: %w", s, err)
		}
		out[sev] = act
	}
	return out, nil
}

// RemoteConfig returns the classifier settings, or nil when no endpoint is
// configured.
func (c *Config) RemoteConfig() *detectors.RemoteConfig {
	if c.RemoteDetector.Endpoint == "" {
		return nil
	}
	return &detectors.RemoteConfig{
		Endpoint:  c.RemoteDetector.Endpoint,
		Method:    c.RemoteDetector.Method,
		Timeout:   time.Duration(c.RemoteDetector.TimeoutMs) * time.Millisecond,
		Threshold: c.RemoteDetector.Threshold,
	}
}

// HasBackend reports whether storage.backends lists name.
func (c *Config) HasBackend(name string) bool {
	return slices.Contains(c.Storage.Backends, name)
}
