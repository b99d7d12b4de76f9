package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskcrew.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TASKCREW_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKCREW_CORS_ORIGIN")
	setString(&cfg.Server.APIKey, "TASKCREW_API_KEY")
	setDuration(&cfg.Server.IdempotencyTTL, "TASKCREW_IDEMPOTENCY_TTL")
	setInt(&cfg.Server.RateLimit, "TASKCREW_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "TASKCREW_RATE_BURST")
	setString(&cfg.Store.Driver, "TASKCREW_STORE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TASKCREW_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TASKCREW_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TASKCREW_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TASKCREW_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TASKCREW_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "TASKCREW_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKCREW_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TASKCREW_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "TASKCREW_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TASKCREW_BREAKER_TIMEOUT")

	// Worker
	setString(&cfg.Worker.Transport, "TASKCREW_WORKER_TRANSPORT")
	setString(&cfg.Worker.BaseURL, "TASKCREW_WORKER_BASE_URL")
	setString(&cfg.Worker.APIKey, "TASKCREW_WORKER_API_KEY")
	setDuration(&cfg.Worker.Timeout, "TASKCREW_WORKER_TIMEOUT")
	setInt(&cfg.Worker.MaxRetries, "TASKCREW_WORKER_MAX_RETRIES")
	setDuration(&cfg.Worker.RetryInitialInterval, "TASKCREW_WORKER_RETRY_INTERVAL")
	setInt(&cfg.Worker.MaxInFlight, "TASKCREW_WORKER_MAX_IN_FLIGHT")

	// Orchestrator
	setInt(&cfg.Orchestrator.BatchSize, "TASKCREW_ORCH_BATCH_SIZE")
	setDuration(&cfg.Orchestrator.TickInterval, "TASKCREW_ORCH_TICK_INTERVAL")
	setInt(&cfg.Orchestrator.MaxConcurrentBusinesses, "TASKCREW_ORCH_MAX_CONCURRENT_BUSINESSES")
	setBool(&cfg.Orchestrator.AutoApproveFullAuto, "TASKCREW_ORCH_AUTO_APPROVE_FULL_AUTO")
	setDuration(&cfg.Orchestrator.RoleStatusWindow, "TASKCREW_ORCH_ROLE_STATUS_WINDOW")

	// Cache
	setInt64(&cfg.Cache.MaxSizeMB, "TASKCREW_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.QueueStatusTTL, "TASKCREW_CACHE_QUEUE_STATUS_TTL")
	setBool(&cfg.Cache.Shared, "TASKCREW_CACHE_SHARED")
	setDuration(&cfg.Cache.L1TTL, "TASKCREW_CACHE_L1_TTL")

	// Alerts
	setString(&cfg.Alerts.SlackWebhookURL, "TASKCREW_SLACK_WEBHOOK_URL")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "TASKCREW_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "TASKCREW_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "TASKCREW_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "TASKCREW_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", cfg.Store.Driver)
	}
	switch cfg.Worker.Transport {
	case "http":
		if cfg.Worker.BaseURL == "" {
			return errors.New("worker.base_url is required for the http transport")
		}
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for the nats transport")
		}
	default:
		return fmt.Errorf("worker.transport must be http or nats, got %q", cfg.Worker.Transport)
	}
	if cfg.Worker.Timeout < 0 {
		return errors.New("worker.timeout must be >= 0")
	}
	if cfg.Worker.MaxRetries < 0 {
		return errors.New("worker.max_retries must be >= 0")
	}
	if cfg.Server.RateLimit < 0 || cfg.Server.RateBurst < 0 {
		return errors.New("server.rate_limit and server.rate_burst must be >= 0")
	}
	if cfg.Server.IdempotencyTTL < 0 {
		return errors.New("server.idempotency_ttl must be >= 0")
	}
	if cfg.Worker.MaxInFlight < 0 {
		return errors.New("worker.max_in_flight must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Orchestrator.BatchSize < 1 {
		return errors.New("orchestrator.batch_size must be >= 1")
	}
	if cfg.Orchestrator.TickInterval < 0 {
		return errors.New("orchestrator.tick_interval must be >= 0")
	}
	if cfg.Orchestrator.MaxConcurrentBusinesses < 1 {
		return errors.New("orchestrator.max_concurrent_businesses must be >= 1")
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	if cfg.Cache.Shared && cfg.NATS.URL == "" {
		return errors.New("nats.url is required for a shared cache")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
