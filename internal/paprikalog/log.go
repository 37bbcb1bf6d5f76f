// Package paprikalog provides structured, component-scoped logging for Paprika.
package paprikalog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with a fixed component scope.
type Logger struct {
	zlog zerolog.Logger
}

// Config controls the root logger's behaviour.
type Config struct {
	Level  string // debug, info, warn, error; default info
	Pretty bool   // pretty-print for local development
	Output io.Writer
}

// New creates the root logger. Every component-scoped logger derives from it
// via Component so that a single Config governs the whole engine.
func New(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	zlog := zerolog.New(output).With().Timestamp().Str("service", "paprika").Logger()
	return &Logger{zlog: zlog}
}

// Noop returns a logger that discards everything; used as a safe default
// for components opened without an explicit Config.
func Noop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Component returns a logger scoped to a named subsystem, e.g. "page-manager".
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }
