package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAuditLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	l, err := OpenFile(path)
	require.NoError(t, err)

	l.LogEvent(AuditEvent{
		Timestamp: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		EventType: EventBlockCommitted,
		EntityID:  "00ab",
		Result:    "success",
		Metadata:  map[string]string{"index": "1"},
	})
	l.LogEvent(AuditEvent{EventType: EventTamperingDetected, EntityID: "rec-1", Result: "failure", Reason: "hash mismatch"})
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, EventBlockCommitted, lines[0]["event_type"])
	assert.Equal(t, "2026-04-01T09:00:00Z", lines[0]["event_time"])
	assert.Equal(t, map[string]any{"index": "1"}, lines[0]["metadata"])
	assert.Equal(t, "hash mismatch", lines[1]["reason"])
	assert.NotContains(t, lines[0], "reason")
}

func TestMemoryAuditLoggerFilters(t *testing.T) {
	var l MemoryAuditLogger
	l.LogEvent(AuditEvent{EventType: EventBlockCommitted})
	l.LogEvent(AuditEvent{EventType: EventChainValidated})
	l.LogEvent(AuditEvent{EventType: EventBlockCommitted})

	assert.Len(t, l.Events(), 3)
	assert.Len(t, l.OfType(EventBlockCommitted), 2)
	assert.Empty(t, l.OfType(EventTamperingDetected))
}
