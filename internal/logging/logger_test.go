package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			level, err := ParseLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, level)
		})
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("pipeline").
		With("class", "scripts").
		Warn(context.Background(), errors.New("boom"), "Asset failed", "file", "a.js")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Asset failed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "scripts", entry["class"])
	assert.Equal(t, "a.js", entry["file"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden debug")
	logger.Info(context.Background(), "hidden info")
	logger.Error(context.Background(), nil, "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible error")
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := Nop()
	logger.Error(context.Background(), errors.New("x"), "nothing")
	assert.NotNil(t, logger.Slog())
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})

	op := StartOperation(logger.With("class", "fonts"), "build")
	op.End(context.Background(), "transformed", 2)

	out := buf.String()
	assert.True(t, strings.Contains(out, "operation=build"))
	assert.Contains(t, out, "duration_ms=")
	assert.Contains(t, out, "class=fonts")
	assert.Contains(t, out, "transformed=2")
}
