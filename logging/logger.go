// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init builds the logger for app, installs it as the global logger and
// returns it. format is "json" or "console"; an unknown level falls back
// to info.
func Init(app, level, format string) zerolog.Logger {
	return InitWriter(os.Stderr, app, level, format)
}

// InitWriter is Init with an explicit output
func InitWriter(out io.Writer, app, level, format string) zerolog.Logger {
	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(out).
		Level(ParseLevel(level)).
		With().Timestamp().Str("app", app).
		Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
