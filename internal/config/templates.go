package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Template renders the default configuration of the given kind as TOML.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "fracd", "service":
		data, err := toml.Marshal(DefaultServiceConfig())
		if err != nil {
			return "", err
		}
		return "# fracd configuration\n" + string(data), nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// CheckFile strictly decodes a service config, rejecting unknown keys, and
// validates the result.
func CheckFile(path string) (ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultServiceConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := ValidateServiceConfig(cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}
