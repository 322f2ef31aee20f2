package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/fracpack/internal/compat"
)

// ServiceConfig is the fracd runtime configuration.
type ServiceConfig struct {
	Name            string   `toml:"name"`
	Addr            string   `toml:"addr"`
	CorsOrigins     []string `toml:"cors_origins"`
	SchemaDir       string   `toml:"schema_dir"`
	Snapshot        string   `toml:"snapshot"`
	Strict          bool     `toml:"strict"`
	Allow           string   `toml:"allow"`
	MaxMessageBytes int64    `toml:"max_message_bytes"`
	CustomTypes     []string `toml:"custom_types"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
	// AdminTokens gate schema registration; empty leaves writes open.
	AdminTokens []string `toml:"admin_tokens"`
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:            "fracd",
		Addr:            ":9200",
		CorsOrigins:     []string{"http://localhost:3000"},
		SchemaDir:       "schemas",
		Snapshot:        "",
		Strict:          false,
		Allow:           "upgrade",
		MaxMessageBytes: 4 << 20,
		CustomTypes:     StandardCustomTypes(),
		LogLevel:        "info",
		LogFormat:       "console",
		AdminTokens:     []string{},
	}
}

// LoadServiceConfig overlays the keys present in the TOML file at path onto
// the defaults. Relative paths are resolved against the file's directory.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	var raw ServiceConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServiceConfig{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("schema_dir") {
		cfg.SchemaDir = strings.TrimSpace(raw.SchemaDir)
	}
	if meta.IsDefined("snapshot") {
		cfg.Snapshot = strings.TrimSpace(raw.Snapshot)
	}
	if meta.IsDefined("strict") {
		cfg.Strict = raw.Strict
	}
	if meta.IsDefined("allow") {
		cfg.Allow = strings.TrimSpace(raw.Allow)
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("custom_types") {
		cfg.CustomTypes = raw.CustomTypes
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("admin_tokens") {
		cfg.AdminTokens = raw.AdminTokens
	}

	base := filepath.Dir(path)
	cfg.SchemaDir = resolvePath(base, cfg.SchemaDir)
	cfg.Snapshot = resolvePath(base, cfg.Snapshot)

	if err := ValidateServiceConfig(cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func ValidateServiceConfig(cfg ServiceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("service config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("service config missing addr")
	}
	if _, err := compat.ParseDifference(cfg.Allow); err != nil {
		return fmt.Errorf("allow invalid: %w", err)
	}
	if cfg.MaxMessageBytes <= 0 {
		return fmt.Errorf("max_message_bytes must be positive")
	}
	known := StandardCustomTypes()
	for i, name := range cfg.CustomTypes {
		found := false
		for _, k := range known {
			if k == name {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("custom_types[%d] unknown handler %q", i, name)
		}
	}
	for i, token := range cfg.AdminTokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("admin_tokens[%d] is empty", i)
		}
	}
	switch cfg.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format invalid: %q", cfg.LogFormat)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("log_level invalid: %q", cfg.LogLevel)
	}
	return nil
}
