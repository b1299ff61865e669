package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture reinitializes the global logger against a buffer and returns it
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	return &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestChildLoggersChainDirectly(t *testing.T) {
	// Each helper must support chaining a level call off the return
	// value, the way every caller in this codebase uses them.
	t.Run("component", func(t *testing.T) {
		buf := capture(t)
		WithComponent("connmgr").Info().Msg("handle opened")
		line := lastLine(t, buf)
		assert.Equal(t, "connmgr", line["component"])
		assert.Equal(t, "handle opened", line["message"])
	})

	t.Run("host", func(t *testing.T) {
		buf := capture(t)
		WithHostID("h1").Warn().Msg("health check failed")
		line := lastLine(t, buf)
		assert.Equal(t, "h1", line["host_id"])
		assert.Equal(t, "warn", line["level"])
	})

	t.Run("user", func(t *testing.T) {
		buf := capture(t)
		WithUserID("u1").Debug().Msg("grant resolved")
		assert.Equal(t, "u1", lastLine(t, buf)["user_id"])
	})

	t.Run("stream key", func(t *testing.T) {
		buf := capture(t)
		WithStreamKey("container", "abc123").Warn().Msg("evicted slow stream subscriber")
		line := lastLine(t, buf)
		assert.Equal(t, "container", line["source"])
		assert.Equal(t, "abc123", line["resource_id"])
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	WithComponent("api").Info().Msg("suppressed")
	assert.Empty(t, buf.Bytes())

	WithComponent("api").Warn().Msg("emitted")
	assert.NotEmpty(t, buf.Bytes())
}
