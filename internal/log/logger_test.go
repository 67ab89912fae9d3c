package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	} {
		require.Equal(t, want, parseLevel(in), in)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithFormat("warn", FormatJSON, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("conn_id", "c1").Msg("slow consumer")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "c1", entry["conn_id"])
	require.Equal(t, "slow consumer", entry["message"])
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithFormat("debug", FormatConsole, &buf)

	logger.Debug().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
