package main

import (
	"log"

	"github.com/spf13/pflag"

	"github.com/danmuck/fracpack/internal/config"
)

const defaultPath = "cmd/fracd/config.toml"

func main() {
	kind := pflag.String("kind", "fracd", "config kind: fracd")
	output := pflag.String("output", defaultPath, "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.String("input", defaultPath, "config path for validation")
	force := pflag.Bool("force", false, "overwrite existing config file")
	pflag.Parse()

	if *validate {
		cfg, err := config.CheckFile(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s (addr=%s allow=%s)", *kind, *input, cfg.Addr, cfg.Allow)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
