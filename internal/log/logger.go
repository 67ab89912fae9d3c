package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a console zerolog logger on stdout with the given level string
// (debug, info, warn, error).
func New(level string) *zerolog.Logger {
	return NewWithFormat(level, FormatConsole, os.Stdout)
}

// NewWithFormat builds a logger writing to out. format is "json" for one
// JSON object per line, anything else selects the human-readable console writer.
func NewWithFormat(level, format string, out io.Writer) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	w := out
	if !strings.EqualFold(format, FormatJSON) {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
