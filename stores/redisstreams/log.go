package redisstreams

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger configuration, wired the way cuemby-warren's pkg/log wires
// zerolog: a Level selector and a component-scoped child logger. Each Log
// owns its own logger (component "redisstreams"); each subscription task
// derives a child of it tagged with its subscriber and stream.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// LogConfig configures the adapter's logger. The zero value logs at Info
// level to stderr in console form.
type LogConfig struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func newLogger(cfg LogConfig) zerolog.Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.JSONOutput {
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).Level(level).With().Timestamp().Logger()
}

func withComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}
