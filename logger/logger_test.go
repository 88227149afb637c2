package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"DEBUG":   zerolog.DebugLevel,
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"ERROR":   zerolog.ErrorLevel,
		"FATAL":   zerolog.FatalLevel,
		"PANIC":   zerolog.PanicLevel,
		"INFO":    zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for name, expected := range cases {
		assert.Equal(t, expected, ParseLevel(name), name)
	}
}

func TestNewLoggerToWritesComponent(t *testing.T) {
	t.Setenv(LogLevelEnv, LOG_LEVEL_WARN)
	var buf bytes.Buffer
	testLogger := NewLoggerTo(&buf, "Test")

	testLogger.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	testLogger.Warn().Msg("kept")
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Test", record["component"])
	assert.Equal(t, "kept", record["message"])
}

func TestPanicCollector(t *testing.T) {
	var out, logs bytes.Buffer
	collector := newPanicCollector(&out, zerolog.New(&logs))

	collector.handleLine([]byte(`{"message":"started"}`))
	collector.handleLine([]byte("plain text"))
	collector.handleLine(nil)
	collector.handleLine([]byte("panic: boom"))
	collector.handleLine([]byte(`{"message":"after panic"}`))

	assert.Equal(t, "{\"message\":\"started\"}\n", out.String())
	assert.Contains(t, logs.String(), "plain text")
	assert.Equal(t, "panic: boom\n{\"message\":\"after panic\"}\n", collector.panicLogs())
}
