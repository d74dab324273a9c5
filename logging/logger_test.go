package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeLoggerAttachesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("actor").WithSession("sess-1", "turn-1").
		Info("turn finalized", "rounds", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "turn finalized", entry["msg"])
	assert.Equal(t, "actor", entry["component"])
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "turn-1", entry["turn_id"])
	assert.Equal(t, float64(2), entry["rounds"])
}

func TestRuntimeLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	logger.Debug("hidden")
	logger.Info("hidden too")
	assert.Zero(t, buf.Len())

	logger.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestRuntimeLoggerCloningDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})
	_ = parent.WithComponent("dispatch")

	parent.Info("from parent")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasComponent := entry["component"]
	assert.False(t, hasComponent)
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
}

func TestLogToolCallSuccessFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	LogToolCall(logger, "weather", 42*time.Millisecond, nil, "call_id", "call_1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tool call completed", entry["msg"])
	assert.Equal(t, "weather", entry["tool_name"])
	assert.Equal(t, float64(42), entry["duration_ms"])
	assert.Equal(t, true, entry["success"])
	assert.Equal(t, "call_1", entry["call_id"])
}

func TestLogModelCallFailureFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	LogModelCall(logger, "gpt-4", 0, time.Millisecond, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "model call failed", entry["msg"])
	assert.Equal(t, "gpt-4", entry["model"])
	assert.Equal(t, false, entry["success"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNoOpLoggerIsSilent(t *testing.T) {
	var logger Logger = NoOpLogger{}
	logger.Debug("x")
	logger.Info("x", "k", "v")
	logger.Warn("x")
	logger.Error("x")
}
