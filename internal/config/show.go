package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// RenderEffective writes the resolved configuration as TOML to w, preceded
// by a comment naming the file it was loaded from. This powers the status
// command's config section.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	source := path
	if source == "" {
		source = "(defaults)"
	}

	if _, err := fmt.Fprintf(w, "# Effective configuration (source: %s)\n\n", source); err != nil {
		return err
	}

	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	return nil
}
