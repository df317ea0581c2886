package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays WARDEN_* environment variables. Unparseable values are
// ignored and leave the current setting in place.
func applyEnv(cfg *Config) {
	cfg.Enabled = envOrDefaultBool("WARDEN_ENABLED", cfg.Enabled)
	cfg.EarlyExitOnCritical = envOrDefaultBool("WARDEN_EARLY_EXIT_ON_CRITICAL", cfg.EarlyExitOnCritical)
	cfg.CacheSize = envOrDefaultInt("WARDEN_CACHE_SIZE", cfg.CacheSize)
	cfg.CacheTTLMs = envOrDefaultInt("WARDEN_CACHE_TTL_MS", cfg.CacheTTLMs)
	cfg.ModuleTimeoutMs = envOrDefaultInt("WARDEN_MODULE_TIMEOUT_MS", cfg.ModuleTimeoutMs)
	cfg.EntropyThreshold = envOrDefaultFloat("WARDEN_ENTROPY_THRESHOLD", cfg.EntropyThreshold)
	cfg.FastModules = envOrDefaultList("WARDEN_FAST_MODULES", cfg.FastModules)
	cfg.GitleaksRules = envOrDefaultBool("WARDEN_GITLEAKS_RULES", cfg.GitleaksRules)

	cfg.Actions.RepeatOffenderThreshold = envOrDefaultInt("WARDEN_REPEAT_OFFENDER_THRESHOLD", cfg.Actions.RepeatOffenderThreshold)
	cfg.Actions.ViolationWindow = envOrDefaultDuration("WARDEN_VIOLATION_WINDOW", cfg.Actions.ViolationWindow)
	cfg.Actions.FloodRatePerSecond = envOrDefaultFloat("WARDEN_FLOOD_RATE_PER_SECOND", cfg.Actions.FloodRatePerSecond)
	cfg.Actions.FloodBurst = envOrDefaultInt("WARDEN_FLOOD_BURST", cfg.Actions.FloodBurst)

	cfg.Queue.BatchSize = envOrDefaultInt("WARDEN_QUEUE_BATCH_SIZE", cfg.Queue.BatchSize)
	cfg.Queue.FlushIntervalMs = envOrDefaultInt("WARDEN_QUEUE_FLUSH_INTERVAL_MS", cfg.Queue.FlushIntervalMs)
	cfg.Queue.Capacity = envOrDefaultInt("WARDEN_QUEUE_CAPACITY", cfg.Queue.Capacity)
	cfg.Queue.Overflow = envOrDefault("WARDEN_QUEUE_OVERFLOW", cfg.Queue.Overflow)
	cfg.Queue.MaxRetries = envOrDefaultInt("WARDEN_QUEUE_MAX_RETRIES", cfg.Queue.MaxRetries)

	cfg.Storage.Backends = envOrDefaultList("WARDEN_STORAGE_BACKENDS", cfg.Storage.Backends)
	cfg.Storage.SQLitePath = envOrDefault("WARDEN_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.ClickHouseDSN = envOrDefault("WARDEN_CLICKHOUSE_DSN", cfg.Storage.ClickHouseDSN)
	cfg.Storage.PostgresDSN = envOrDefault("WARDEN_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.Kafka.Brokers = envOrDefaultList("WARDEN_KAFKA_BROKERS", cfg.Storage.Kafka.Brokers)
	cfg.Storage.Kafka.Topic = envOrDefault("WARDEN_KAFKA_TOPIC", cfg.Storage.Kafka.Topic)

	cfg.Notify.MQTT.Broker = envOrDefault("WARDEN_MQTT_BROKER", cfg.Notify.MQTT.Broker)
	cfg.Notify.MQTT.Topic = envOrDefault("WARDEN_MQTT_TOPIC", cfg.Notify.MQTT.Topic)
	cfg.Notify.MQTT.ClientID = envOrDefault("WARDEN_MQTT_CLIENT_ID", cfg.Notify.MQTT.ClientID)

	cfg.RemoteDetector.Endpoint = envOrDefault("WARDEN_REMOTE_DETECTOR_ENDPOINT", cfg.RemoteDetector.Endpoint)
	cfg.RemoteDetector.TimeoutMs = envOrDefaultInt("WARDEN_REMOTE_DETECTOR_TIMEOUT_MS", cfg.RemoteDetector.TimeoutMs)

	cfg.Server.HTTPAddr = envOrDefault("WARDEN_HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = envOrDefault("WARDEN_GRPC_ADDR", cfg.Server.GRPCAddr)
	cfg.Server.APIKeyHashes = envOrDefaultList("WARDEN_API_KEY_HASHES", cfg.Server.APIKeyHashes)
	cfg.Server.PostgresAPIKeys = envOrDefaultBool("WARDEN_POSTGRES_API_KEYS", cfg.Server.PostgresAPIKeys)

	cfg.Telemetry.OTLPEndpoint = envOrDefault("WARDEN_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envOrDefault("WARDEN_SERVICE_NAME", cfg.Telemetry.ServiceName)

	cfg.LogLevel = envOrDefault("WARDEN_LOG_LEVEL", cfg.LogLevel)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// envOrDefaultList splits a comma-separated value, dropping empty items.
func envOrDefaultList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
