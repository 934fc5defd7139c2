package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validation range constants.
const (
	minInterval         = 1 * time.Second
	minMaxAttempts      = 1
	maxMaxAttempts      = 10
	minRetryBase        = 1 * time.Millisecond
	maxConflictWindow   = 1 * time.Hour
	minMaxHops          = 1
	maxMaxHops          = 16
	minSubscriberBuffer = 1
	minShutdownTimeout  = 1 * time.Second
)

var validBackends = map[string]bool{
	"sqlite":   true,
	"redis":    true,
	"postgres": true,
	"memory":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateEvents(&cfg.Events)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("sync.interval", s.Interval, minInterval)...)
	errs = append(errs, validateDuration("sync.retry_base", s.RetryBase, minRetryBase)...)

	if d, err := time.ParseDuration(s.ConflictWindow); err != nil {
		errs = append(errs, fmt.Errorf("sync.conflict_window: invalid duration %q: %w", s.ConflictWindow, err))
	} else if d <= 0 || d > maxConflictWindow {
		errs = append(errs, fmt.Errorf("sync.conflict_window: must be > 0 and <= %s, got %s",
			maxConflictWindow, s.ConflictWindow))
	}

	if s.MaxAttempts < minMaxAttempts || s.MaxAttempts > maxMaxAttempts {
		errs = append(errs, fmt.Errorf("sync.max_attempts: must be between %d and %d, got %d",
			minMaxAttempts, maxMaxAttempts, s.MaxAttempts))
	}

	if s.MaxHops < minMaxHops || s.MaxHops > maxMaxHops {
		errs = append(errs, fmt.Errorf("sync.max_hops: must be between %d and %d, got %d",
			minMaxHops, maxMaxHops, s.MaxHops))
	}

	if s.SubscriberBuffer < minSubscriberBuffer {
		errs = append(errs, fmt.Errorf("sync.subscriber_buffer: must be >= %d, got %d",
			minSubscriberBuffer, s.SubscriberBuffer))
	}

	return errs
}

func validateStore(s *StoreConfig) []error {
	if !validBackends[s.Backend] {
		return []error{fmt.Errorf("store.backend: must be one of sqlite, redis, postgres, memory; got %q", s.Backend)}
	}

	switch s.Backend {
	case "sqlite":
		if s.Path == "" {
			return []error{errors.New("store.path: must not be empty for the sqlite backend")}
		}
	case "redis":
		if s.RedisURL == "" {
			return []error{errors.New("store.redis_url: must not be empty for the redis backend")}
		}

		if !strings.HasPrefix(s.RedisURL, "redis://") && !strings.HasPrefix(s.RedisURL, "rediss://") {
			return []error{fmt.Errorf("store.redis_url: must use redis:// or rediss://, got %q", s.RedisURL)}
		}
	case "postgres":
		if !strings.HasPrefix(s.PostgresURL, "postgres://") && !strings.HasPrefix(s.PostgresURL, "postgresql://") {
			return []error{fmt.Errorf("store.postgres_url: must use postgres:// or postgresql://, got %q", s.PostgresURL)}
		}
	}

	return nil
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}

	errs = append(errs, validateDuration("server.shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	return errs
}

func validateEvents(e *EventsConfig) []error {
	if len(e.KafkaBrokers) == 0 {
		return nil
	}

	var errs []error

	if e.KafkaTopic == "" {
		errs = append(errs, errors.New("events.kafka_topic: must not be empty when brokers are set"))
	}

	for _, b := range e.KafkaBrokers {
		if _, _, err := net.SplitHostPort(b); err != nil {
			errs = append(errs, fmt.Errorf("events.kafka_brokers: %q: %w", b, err))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be text or json; got %q", l.LogFormat))
	}

	return errs
}

func validateDuration(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, value)}
	}

	return nil
}
