// Package logging configures diagnostic logging for the interpreter.
//
// Diagnostics are kept separate from the interactive transcript: user facing
// messages go straight to the terminal and zerolog only receives lifecycle
// events, at debug level, and non-fatal failures, at warn level.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultLevel is used when no level, or an invalid one, is configured.
const DefaultLevel = zerolog.ErrorLevel

func init() {
	zerolog.SetGlobalLevel(DefaultLevel)
	log.Logger = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
}

// ConfigureGlobalLogging sets the global level and destination. A nil
// writer logs to standard error in console format, anything else receives
// JSON lines.
func ConfigureGlobalLogging(levelStr string, w io.Writer) zerolog.Level {
	level := ParseLevel(levelStr)
	zerolog.SetGlobalLevel(level)

	if w == nil {
		w = consoleWriter(os.Stderr)
	}

	logContext := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}
	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	return level
}

// ParseLevel converts a level name to a zerolog level, falling back to
// DefaultLevel.
func ParseLevel(levelStr string) zerolog.Level {
	if levelStr == "" {
		return DefaultLevel
	}

	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil || level == zerolog.NoLevel {
		log.Error().Err(err).
			Str("logLevel", levelStr).
			Msg("Invalid log level provided. Defaulting to error level.")
		return DefaultLevel
	}
	return level
}

// Component returns a child of the global logger tagged with a component.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// NewLoggerWithWriter creates a standalone JSON logger, mostly for tests.
func NewLoggerWithWriter(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}
