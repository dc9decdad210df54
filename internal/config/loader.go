package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed files return an error. Files ending
// in .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(globalPath, projectPath string) (*BobConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.bob/config.json
// Project: <root>/.bob/config.json, .yaml or .yml, first one found
func LoadDefault(root string) (*BobConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".bob", "config.json")
	return Load(globalPath, ProjectPath(root))
}

// ProjectPath returns the project config file under root. When none exists
// the JSON path is returned, which is where Save writes.
func ProjectPath(root string) string {
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(root, ".bob", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(root, ".bob", "config.json")
}

// mergeConfigFile reads a config file and merges it into the base config.
// Missing files are silently skipped.
func mergeConfigFile(base *BobConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded BobConfig
	if isYAML(path) {
		err = yaml.Unmarshal(data, &loaded)
	} else {
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	merge(base, &loaded)
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// merge overlays the fields set in loaded onto base. Maps merge per key;
// the exclude list is replaced as a whole.
func merge(base, loaded *BobConfig) {
	if loaded.BuildDir != "" {
		base.BuildDir = loaded.BuildDir
	}
	if loaded.Exclude != nil {
		base.Exclude = loaded.Exclude
	}
	if loaded.Concurrency > 0 {
		base.Concurrency = loaded.Concurrency
	}
	if loaded.History != nil {
		base.History = loaded.History
	}

	for key, value := range loaded.Options {
		base.Options[key] = value
	}
	for ext, outExt := range loaded.Copy {
		base.Copy[ext] = outExt
	}
	for name, command := range loaded.Commands {
		base.Commands[name] = command
	}
}
