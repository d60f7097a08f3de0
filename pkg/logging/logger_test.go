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
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStructuredLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithOutput("optimizee-test", "1.0.0", InfoLevel, &buf)

	ctx := WithRunID(context.Background(), "run-123")
	logger.Info(ctx, "[TEST] hello", Fields{"rows": 47})
	logger.Error(ctx, "[TEST_ERROR] boom", Fields{}, errors.New("disk full"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var info LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	assert.Equal(t, "INFO", info.Level)
	assert.Equal(t, "optimizee-test", info.Service)
	assert.Equal(t, "run-123", info.RunID)
	assert.Equal(t, float64(47), info.Fields["rows"])
	assert.Empty(t, info.File)

	var errEntry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &errEntry))
	assert.Equal(t, "ERROR", errEntry.Level)
	assert.Equal(t, "disk full", errEntry.Error)
	assert.NotEmpty(t, errEntry.File)
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithOutput("svc", "1", WarnLevel, &buf)

	logger.Debug(context.Background(), "debug", nil)
	logger.Info(context.Background(), "info", nil)
	assert.Zero(t, buf.Len())

	logger.Warn(context.Background(), "warn", nil)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestContextLogger_MergesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithOutput("svc", "1", DebugLevel, &buf)

	stage := logger.WithFields(Fields{"stage": "PREPROCESS", "rows": 1})
	stage.Info(context.Background(), "[STAGE] done", Fields{"rows": 2})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "PREPROCESS", entry.Fields["stage"])
	assert.Equal(t, float64(2), entry.Fields["rows"])
}
