// Package logging constructs the zerolog loggers used across the engine.
// Components receive a logger value explicitly; there is no package-level
// global.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger writing human-readable output to w at the given level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NewTestLogger creates a logger for tests with a verbosity knob: 0 warns,
// 1 info, 2 debug, anything higher traces.
func NewTestLogger(w io.Writer, verbose int) zerolog.Logger {
	var level zerolog.Level
	switch verbose {
	case 0:
		level = zerolog.WarnLevel
	case 1:
		level = zerolog.InfoLevel
	case 2:
		level = zerolog.DebugLevel
	default:
		level = zerolog.TraceLevel
	}
	return New(w, level)
}

// LevelFromString parses a level name, accepting any case.
func LevelFromString(levelStr string) (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(levelStr))
}

// Default returns a warn-level logger on stderr.
func Default() zerolog.Logger {
	return New(os.Stderr, zerolog.WarnLevel)
}

// Nop returns a disabled logger for components that were not given one.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
