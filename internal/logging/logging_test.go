package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	testCases := []struct {
		name     string
		expected slog.Level
	}{
		{name: "debug", expected: slog.LevelDebug},
		{name: "INFO", expected: slog.LevelInfo},
		{name: "warn", expected: slog.LevelWarn},
		{name: "warning", expected: slog.LevelWarn},
		{name: "error", expected: slog.LevelError},
		{name: "", expected: slog.LevelInfo},
		{name: "verbose", expected: slog.LevelInfo},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Level(tt.name))
		})
	}
}

func TestNew(t *testing.T) {

	t.Run("json output carries service", func(t *testing.T) {
		buf := bytes.Buffer{}
		logger := New(&buf, "consumer", "info", "json")
		logger.Info("started", "port", "8080")

		record := map[string]any{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "consumer", record["service"])
		assert.Equal(t, "started", record["msg"])
		assert.Equal(t, "8080", record["port"])
	})

	t.Run("filters below level", func(t *testing.T) {
		buf := bytes.Buffer{}
		logger := New(&buf, "producer", "warn", "text")
		logger.Info("dropped")
		assert.Empty(t, buf.String())

		logger.Warn("kept")
		assert.Contains(t, buf.String(), "msg=kept")
		assert.Contains(t, buf.String(), "service=producer")
	})
}
