package stream

import (
	"strings"
	"time"

	"github.com/dockfleet/dockfleet/pkg/types"
)

// NormalizeLine turns one raw engine log line into a normalized entry.
// A leading RFC3339 timestamp (as produced by the engine when timestamps
// are requested) is parsed off the line; without one the entry is
// stamped with the current time.
func NormalizeLine(raw string, source types.SourceType, sourceID, hostID string) *types.LogEntry {
	ts, message, ok := splitTimestamp(raw)
	if !ok {
		ts = time.Now().UTC()
		message = raw
	}

	entry := &types.LogEntry{
		Timestamp: ts,
		Source:    source,
		SourceID:  sourceID,
		HostID:    hostID,
		Message:   message,
		Raw:       raw,
		Metadata:  map[string]string{},
	}

	switch source {
	case types.SourceContainer:
		entry.Metadata["container_id"] = shortID(sourceID)
	case types.SourceService:
		entry.Metadata["service_id"] = sourceID
		// Service log lines carry a "task | message" prefix
		if task, rest, found := strings.Cut(message, " | "); found && !strings.Contains(task, " ") {
			entry.Metadata["task"] = task
			entry.Message = rest
			message = rest
		}
	}

	entry.Level = DetectLevel(message)
	return entry
}

// splitTimestamp strips a leading RFC3339 timestamp followed by a space
func splitTimestamp(raw string) (time.Time, string, bool) {
	idx := strings.IndexByte(raw, ' ')
	if idx <= 0 {
		return time.Time{}, raw, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw[:idx])
	if err != nil {
		return time.Time{}, raw, false
	}
	return ts.UTC(), raw[idx+1:], true
}

// DetectLevel classifies a message by case-insensitive keyword match
func DetectLevel(message string) types.LogLevel {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "critical", "fatal", "panic"):
		return types.LevelCritical
	case containsAny(lower, "error", "fail") || hasToken(lower, "err"):
		return types.LevelError
	case strings.Contains(lower, "warn"):
		return types.LevelWarning
	case containsAny(lower, "debug", "trace"):
		return types.LevelDebug
	case containsAny(lower, "info", "notice"):
		return types.LevelInfo
	default:
		return types.LevelInfo
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// hasToken reports whether s contains word as a standalone token,
// ignoring surrounding punctuation. Keeps "err" from matching inside
// ordinary words.
func hasToken(s, word string) bool {
	for _, field := range strings.Fields(s) {
		if strings.Trim(field, "[]():=,.!\"'") == word {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
