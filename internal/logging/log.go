package logging

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := build(os.Stderr, Config{Level: zerolog.InfoLevel, Timestamp: true})
	current.Store(&l)
}

func apply(cfg Config) {
	l := build(os.Stderr, cfg)
	current.Store(&l)
}

// SetOutput redirects the package logger, keeping the configured level.
func SetOutput(w io.Writer, cfg Config) {
	l := build(w, cfg)
	current.Store(&l)
}

func build(w io.Writer, cfg Config) zerolog.Logger {
	if cfg.Bypass {
		return zerolog.New(w).Level(cfg.Level)
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		out.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	l := zerolog.New(out)
	if cfg.Timestamp {
		l = l.With().Timestamp().Logger()
	}
	return l.Level(cfg.Level)
}

// Logger returns the package logger for structured call sites.
func Logger() *zerolog.Logger {
	return current.Load()
}

func Tracef(format string, args ...any) {
	current.Load().Trace().Msg(fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) {
	current.Load().Debug().Msg(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	current.Load().Info().Msg(fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	current.Load().Warn().Msg(fmt.Sprintf(format, args...))
}

func Errf(format string, args ...any) {
	current.Load().Error().Msg(fmt.Sprintf(format, args...))
}

// Logf always prints, regardless of level.
func Logf(format string, args ...any) {
	current.Load().Log().Msg(fmt.Sprintf(format, args...))
}
