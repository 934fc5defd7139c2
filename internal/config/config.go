// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for phasesync. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Sync    SyncConfig    `toml:"sync"`
	Store   StoreConfig   `toml:"store"`
	Server  ServerConfig  `toml:"server"`
	Inbox   InboxConfig   `toml:"inbox"`
	Events  EventsConfig  `toml:"events"`
	Logging LoggingConfig `toml:"logging"`
}

// SyncConfig controls the coordinator: background drain interval, retry
// policy, conflict window and the cross-phase propagation bound.
type SyncConfig struct {
	Interval         string `toml:"interval"`
	MaxAttempts      int    `toml:"max_attempts"`
	RetryBase        string `toml:"retry_base"`
	ConflictWindow   string `toml:"conflict_window"`
	MaxHops          int    `toml:"max_hops"`
	SubscriberBuffer int    `toml:"subscriber_buffer"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	RedisURL    string `toml:"redis_url"`
	PostgresURL string `toml:"postgres_url"`
}

// ServerConfig controls the daemon's HTTP listener.
type ServerConfig struct {
	Listen          string `toml:"listen"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// InboxConfig enables the drop-directory ingestion. An empty Dir disables it.
type InboxConfig struct {
	Dir string `toml:"dir"`
}

// EventsConfig enables publishing completed items to Kafka. No brokers
// disables it.
type EventsConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

// LoggingConfig controls log output: level and handler format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Backend    *string // --store flag
	Listen     *string // --listen flag
}

// Durations is the parsed form of the duration strings in SyncConfig and
// ServerConfig. Only produced from a validated Config.
type Durations struct {
	Interval        time.Duration
	RetryBase       time.Duration
	ConflictWindow  time.Duration
	ShutdownTimeout time.Duration
}

// ParseDurations converts the validated duration strings.
func (c *Config) ParseDurations() (Durations, error) {
	var (
		d   Durations
		err error
	)

	if d.Interval, err = time.ParseDuration(c.Sync.Interval); err != nil {
		return Durations{}, err
	}

	if d.RetryBase, err = time.ParseDuration(c.Sync.RetryBase); err != nil {
		return Durations{}, err
	}

	if d.ConflictWindow, err = time.ParseDuration(c.Sync.ConflictWindow); err != nil {
		return Durations{}, err
	}

	if d.ShutdownTimeout, err = time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return Durations{}, err
	}

	return d, nil
}
