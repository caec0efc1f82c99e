package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

const configHeader = `# calltree configuration
# Keys may be overridden with CALLTREE_* environment variables,
# e.g. CALLTREE_RENDER_MAX_DEPTH=8.
`

// WriteConfig writes cfg as YAML to path, creating parent directories.
func WriteConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
