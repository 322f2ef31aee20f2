package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/fracpack/internal/config"
	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	testlog.Start(t)

	missing := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := loadConfig(missing, false)
	if err != nil {
		t.Fatalf("load missing default config: %v", err)
	}
	if cfg.Addr != config.DefaultServiceConfig().Addr {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if _, err := loadConfig(missing, true); err == nil {
		t.Fatalf("expected explicit missing config to fail")
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("addr = \":9300\"\nstrict = true\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path, true)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Addr != ":9300" || !cfg.Strict {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if cfg.Name != "fracd" {
		t.Fatalf("expected default name to survive overlay, got %q", cfg.Name)
	}
}
