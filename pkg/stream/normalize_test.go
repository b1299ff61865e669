package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/types"
)

func TestNormalizeLineTimestamp(t *testing.T) {
	raw := "2026-03-14T09:15:00.000000000Z starting worker pool"
	entry := NormalizeLine(raw, types.SourceContainer, "abcdef0123456789", "host-1")

	assert.Equal(t, time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC), entry.Timestamp)
	assert.Equal(t, "starting worker pool", entry.Message)
	assert.Equal(t, raw, entry.Raw)
	assert.Equal(t, "abcdef012345", entry.Metadata["container_id"])
}

func TestNormalizeLineNoTimestamp(t *testing.T) {
	before := time.Now()
	entry := NormalizeLine("plain message", types.SourceContainer, "c1", "host-1")

	assert.Equal(t, "plain message", entry.Message)
	assert.False(t, entry.Timestamp.Before(before.Add(-time.Second)))
}

func TestNormalizeLineServiceTaskPrefix(t *testing.T) {
	raw := "2026-03-14T09:15:00Z web.1.abc123 | request handled"
	entry := NormalizeLine(raw, types.SourceService, "svc-1", "host-1")

	assert.Equal(t, "web.1.abc123", entry.Metadata["task"])
	assert.Equal(t, "request handled", entry.Message)
	assert.Equal(t, "svc-1", entry.Metadata["service_id"])
}

func TestDetectLevel(t *testing.T) {
	tests := []struct {
		message string
		want    types.LogLevel
	}{
		{"ERROR: connection refused", types.LevelError},
		{"request failed with status 502", types.LevelError},
		{"[err] timeout", types.LevelError},
		{"WARN low disk space", types.LevelWarning},
		{"warning: deprecated flag", types.LevelWarning},
		{"DEBUG cache miss", types.LevelDebug},
		{"trace: span started", types.LevelDebug},
		{"INFO server started", types.LevelInfo},
		{"notice: rotation complete", types.LevelInfo},
		{"FATAL out of memory", types.LevelCritical},
		{"panic: nil pointer", types.LevelCritical},
		{"critical temperature reached", types.LevelCritical},
		{"request completed in 12ms", types.LevelInfo},
		{"data transferred successfully", types.LevelInfo}, // "err" inside a word
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLevel(tt.message))
		})
	}
}

func TestSplitTimestampRejectsGarbage(t *testing.T) {
	_, rest, ok := splitTimestamp("not-a-timestamp hello")
	require.False(t, ok)
	assert.Equal(t, "not-a-timestamp hello", rest)
}
