package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// engineKeys are the recognized engine setting names. SettingsFromFile
// rejects anything else so a misspelled key fails loudly instead of
// silently falling back to a default.
var engineKeys = map[string]bool{
	"max_loop_iterations":   true,
	"max_builds_per_vertex": true,
	"max_builds_to_keep":    true,
	"vertex_timeout":        true,
	"max_retries":           true,
	"retry_backoff":         true,
	"failure_policy":        true,
}

// FromFile loads a raw config map from a file, picking the decoder by
// extension. Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	return decode(data, yaml.Unmarshal, "yaml")
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	return decode(data, json.Unmarshal, "json")
}

func decode(data []byte, unmarshal func([]byte, any) error, format string) (Config, error) {
	var m map[string]any
	if err := unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return New(m), nil
}

// SettingsFromFile loads an engine settings file and resolves it against
// the defaults, with the loop iteration bound clamped to its ceiling.
// Unknown keys and unrecognized failure policies are errors.
func SettingsFromFile(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	for key := range c.data {
		if !engineKeys[key] {
			return Settings{}, fmt.Errorf("unknown engine setting %q", key)
		}
	}
	s := SettingsFrom(c)
	if s.FailurePolicy != "continue" && s.FailurePolicy != "abort" {
		return Settings{}, fmt.Errorf("invalid failure_policy %q: want continue or abort", s.FailurePolicy)
	}
	return s, nil
}
