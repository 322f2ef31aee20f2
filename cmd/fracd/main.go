package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/danmuck/fracpack/internal/config"
	"github.com/danmuck/fracpack/internal/observability"
	"github.com/danmuck/fracpack/internal/server"
)

const defaultConfigPath = "cmd/fracd/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fracd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("fracd", pflag.ContinueOnError)
	path := fs.StringP("config", "c", defaultConfigPath, "path to fracd TOML config")
	addr := fs.String("addr", "", "override listen address")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(*path, fs.Changed("config"))
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	observability.InitLogger(cfg.LogOptions())
	zerolog.SetGlobalLevel(cfg.Level())

	svc, err := server.NewService(cfg)
	if err != nil {
		return err
	}
	return svc.Run()
}

// loadConfig falls back to defaults when the default path is absent; an
// explicitly named file must exist.
func loadConfig(path string, explicit bool) (config.ServiceConfig, error) {
	if _, err := os.Stat(path); err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return config.DefaultServiceConfig(), nil
	}
	return config.LoadServiceConfig(path)
}
