package config

import (
	"github.com/rs/zerolog"

	"github.com/danmuck/fracpack/internal/compat"
	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracjson"
	"github.com/danmuck/fracpack/internal/observability"
)

// StandardCustomTypes names every handler fracd can enable.
func StandardCustomTypes() []string {
	return fracjson.StandardTypes().Names()
}

// Policy is the compatibility policy for registering new schema versions.
func (c ServiceConfig) Policy() (compat.Difference, error) {
	return compat.ParseDifference(c.Allow)
}

// Customs builds the handler table named by custom_types.
func (c ServiceConfig) Customs() *compiled.CustomTypes {
	return fracjson.StandardTypes().Subset(c.CustomTypes...)
}

func (c ServiceConfig) Level() zerolog.Level {
	if c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// LogOptions describes the service logger for observability.InitLogger.
func (c ServiceConfig) LogOptions() observability.LogOptions {
	return observability.LogOptions{
		App:   c.Name,
		Level: c.Level(),
		JSON:  c.LogFormat == "json",
		Color: true,
	}
}
