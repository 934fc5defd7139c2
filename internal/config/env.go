package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "PHASESYNC_CONFIG"
	EnvBackend     = "PHASESYNC_STORE_BACKEND"
	EnvRedisURL    = "PHASESYNC_REDIS_URL"
	EnvPostgresURL = "PHASESYNC_POSTGRES_URL"
	EnvLogLevel    = "PHASESYNC_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // PHASESYNC_CONFIG: override config file path
	Backend     string // PHASESYNC_STORE_BACKEND: store backend
	RedisURL    string // PHASESYNC_REDIS_URL: redis connection URL
	PostgresURL string // PHASESYNC_POSTGRES_URL: postgres connection URL
	LogLevel    string // PHASESYNC_LOG_LEVEL: log level
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		Backend:     os.Getenv(EnvBackend),
		RedisURL:    os.Getenv(EnvRedisURL),
		PostgresURL: os.Getenv(EnvPostgresURL),
		LogLevel:    os.Getenv(EnvLogLevel),
	}
}
