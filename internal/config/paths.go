package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName        = "phasesync"
	configFileName = "config.toml"
	pidFileName    = "phasesync.pid"
)

// dirKind selects one of the XDG base directories.
type dirKind struct {
	env      string   // XDG override, Linux only
	fallback []string // below $HOME when the override is unset
}

var (
	configDirKind = dirKind{env: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataDirKind   = dirKind{env: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// appDir resolves the phasesync directory of kind. macOS keeps config and
// data together under Application Support. It returns "" when the home
// directory is unknown.
func appDir(kind dirKind) string {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv(kind.env); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	return filepath.Join(append(append([]string{home}, kind.fallback...), appName)...)
}

// DefaultConfigDir holds config.toml.
func DefaultConfigDir() string { return appDir(configDirKind) }

// DefaultDataDir holds the SQLite database and the serve PID file.
func DefaultDataDir() string { return appDir(dataDirKind) }

// DefaultConfigPath is used when neither PHASESYNC_CONFIG nor --config is set.
func DefaultConfigPath() string { return inDir(DefaultConfigDir(), configFileName) }

// DefaultPIDPath is where serve records its PID for status and reload.
func DefaultPIDPath() string { return inDir(DefaultDataDir(), pidFileName) }

func inDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
