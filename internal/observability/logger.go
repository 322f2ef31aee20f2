package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// LogOptions describe the service logger.
type LogOptions struct {
	App   string
	Level zerolog.Level
	// JSON emits raw zerolog lines instead of the console format.
	JSON bool
	// Color is only honored by the console format.
	Color bool
}

// InitLogger installs the service logger on stdout as the global zerolog
// logger. Console colors follow whether stdout is a terminal.
func InitLogger(opts LogOptions) zerolog.Logger {
	opts.Color = opts.Color && term.IsTerminal(int(os.Stdout.Fd()))
	return InitLoggerTo(os.Stdout, opts)
}

func InitLoggerTo(out io.Writer, opts LogOptions) zerolog.Logger {
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    !opts.Color,
			TimeFormat: time.RFC3339,
		}
	}
	logger := zerolog.New(out).Level(opts.Level).With().Timestamp().Str("app", opts.App).Logger()
	log.Logger = logger
	return logger
}
