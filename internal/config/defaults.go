package config

import "path/filepath"

// Default values for configuration options. These represent "layer 0" of the
// four-layer override chain.
const (
	defaultInterval         = "30s"
	defaultMaxAttempts      = 3
	defaultRetryBase        = "1s"
	defaultConflictWindow   = "5s"
	defaultMaxHops          = 4
	defaultSubscriberBuffer = 64
	defaultBackend          = "sqlite"
	defaultDBFileName       = "phasesync.db"
	defaultListen           = "127.0.0.1:8787"
	defaultShutdownTimeout  = "10s"
	defaultKafkaTopic       = "phasesync.items"
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Interval:         defaultInterval,
			MaxAttempts:      defaultMaxAttempts,
			RetryBase:        defaultRetryBase,
			ConflictWindow:   defaultConflictWindow,
			MaxHops:          defaultMaxHops,
			SubscriberBuffer: defaultSubscriberBuffer,
		},
		Store: StoreConfig{
			Backend: defaultBackend,
			Path:    defaultDBPath(),
		},
		Server: ServerConfig{
			Listen:          defaultListen,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

func defaultDBPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return defaultDBFileName
	}

	return filepath.Join(dir, defaultDBFileName)
}
