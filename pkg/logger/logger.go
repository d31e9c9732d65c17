// pkg/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	// Log is the process-wide logger. Components take a copy through
	// constructor parameters; main wires this one.
	Log zerolog.Logger
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	Log = New(os.Stdout, "info", "console")
}

// New builds a logger writing to out. format is "console" (colored, human
// readable) or "json".
func New(out io.Writer, levelStr, format string) zerolog.Logger {
	if strings.EqualFold(format, "console") || format == "" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	return zerolog.New(out).
		Level(parseLevel(levelStr)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Configure replaces Log with a logger built from the given level and format.
func Configure(levelStr, format string) zerolog.Logger {
	level := parseLevel(levelStr)
	zerolog.SetGlobalLevel(level)
	Log = New(os.Stdout, levelStr, format)
	if levelStr != "" && level == zerolog.InfoLevel && !strings.EqualFold(levelStr, "info") {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
	}
	return Log
}

// Component returns Log tagged with a component name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

func parseLevel(levelStr string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil || levelStr == "" {
		return zerolog.InfoLevel
	}
	return level
}
