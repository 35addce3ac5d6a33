package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/datafarmer/datafarmer/internal/config"
	"github.com/datafarmer/datafarmer/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", "debug", slog.LevelDebug, true},
		{"upper case", "INFO", slog.LevelInfo, true},
		{"warning alias", "warning", slog.LevelWarn, true},
		{"error", "error", slog.LevelError, true},
		{"empty defaults to info", "", slog.LevelInfo, true},
		{"unknown", "verbose", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := logger.ParseLevel(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSetupJSON(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l, err := logger.Setup(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("filtered out")
	l.Warn("kept", "batch_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "abc", entry["batch_id"])

	assert.Same(t, l.Handler(), slog.Default().Handler(), "Setup should install the logger as default")
}

func TestSetupText(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l, err := logger.Setup(config.LogConfig{Level: "info", Format: "text"}, &buf)
	require.NoError(t, err)

	l.Info("hello", "rows", 3)

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "rows=3")
}

func TestSetupInvalidLevelWarns(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l, err := logger.Setup(config.LogConfig{Level: "chatty", Format: "json"}, &buf)
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.Contains(t, buf.String(), "invalid log level configured")
}

func TestTestLogBuffer(t *testing.T) {
	l, buf := logger.GetTestLogger(t)

	l.Info("first", "n", 1)
	l.Debug("second")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Len(t, buf.EntriesWithMessage("second"), 1)

	logger.AssertLogContains(t, buf, "first")
	logger.AssertLogField(t, buf, "msg", "first")

	buf.Reset()
	assert.Empty(t, buf.String())
}
