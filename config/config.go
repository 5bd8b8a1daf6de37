package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport selects where notifications are published.
type Transport string

const (
	TransportLog   Transport = "log"
	TransportKafka Transport = "kafka"
	TransportAMQP  Transport = "amqp"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	HTTPAddr        string
	DatabaseURL     string
	JWTSecret       string
	StorageTimeout  time.Duration
	DBMaxConns      int32
	RunMigrations   bool
	ShutdownTimeout time.Duration

	LogLevel  slog.Level
	LogFormat string

	NotifyTransport  Transport
	KafkaBrokers     []string
	KafkaTopic       string
	AMQPURL          string
	AMQPQueue        string
	RelayInterval    time.Duration
	RelayBatch       int
	RelayMaxAttempts int
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	var errs []error

	cfg := Config{
		HTTPAddr:      envString(getenv, "HTTP_ADDR", ":8080"),
		DatabaseURL:   getenv("DATABASE_URL"),
		JWTSecret:     getenv("JWT_SECRET"),
		RunMigrations: envBool(getenv, "RUN_MIGRATIONS", true),
		LogFormat:     strings.ToLower(envString(getenv, "LOG_FORMAT", "json")),
		KafkaTopic:    envString(getenv, "KAFKA_TOPIC", "freightmatch.notifications"),
		AMQPURL:       getenv("AMQP_URL"),
		AMQPQueue:     envString(getenv, "AMQP_QUEUE", "freightmatch.notifications"),
	}

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	var err error
	if cfg.StorageTimeout, err = envDuration(getenv, "STORAGE_TIMEOUT", 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = envDuration(getenv, "SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RelayInterval, err = envDuration(getenv, "RELAY_INTERVAL", 2*time.Second); err != nil {
		errs = append(errs, err)
	}

	maxConns, err := envInt(getenv, "DB_MAX_CONNS", 16)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.DBMaxConns = int32(maxConns)
	if cfg.RelayBatch, err = envInt(getenv, "RELAY_BATCH", 20); err != nil {
		errs = append(errs, err)
	}
	if cfg.RelayMaxAttempts, err = envInt(getenv, "RELAY_MAX_ATTEMPTS", 5); err != nil {
		errs = append(errs, err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envString(getenv, "LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unsupported value %q", cfg.LogFormat))
	}

	for _, value := range strings.Split(getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, value)
		}
	}

	cfg.NotifyTransport = Transport(strings.ToLower(envString(getenv, "NOTIFY_TRANSPORT", string(TransportLog))))
	switch cfg.NotifyTransport {
	case TransportLog:
	case TransportKafka:
		if len(cfg.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when NOTIFY_TRANSPORT=kafka"))
		}
	case TransportAMQP:
		if cfg.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required when NOTIFY_TRANSPORT=amqp"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_TRANSPORT: unsupported value %q", cfg.NotifyTransport))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func envString(getenv func(string) string, name, fallback string) string {
	if v := strings.TrimSpace(getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envBool(getenv func(string) string, name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(getenv func(string) string, name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	return d, nil
}

func envInt(getenv func(string) string, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid positive integer %q", name, raw)
	}
	return n, nil
}
