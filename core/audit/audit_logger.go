package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event types written by the ledger.
const (
	EventGenesisCreated    = "genesis_created"
	EventChainLoaded       = "chain_loaded"
	EventBlockCommitted    = "block_committed"
	EventCommitFailed      = "commit_failed"
	EventIntegrityVerified = "integrity_verified"
	EventTamperingDetected = "tampering_detected"
	EventChainValidated    = "chain_validated"
	EventStoreQuarantined  = "store_quarantined"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time
	EventType string
	EntityID  string // block hash, tx id or record id
	Result    string // "success", "failure", ...
	Reason    string
	Metadata  map[string]string
}

// AuditLogger is the interface for logging audit events.
type AuditLogger interface {
	LogEvent(event AuditEvent)
}

// JSONAuditLogger appends events as JSON lines.
type JSONAuditLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	closer io.Closer
}

// NewJSONAuditLogger writes JSON lines to w.
func NewJSONAuditLogger(w io.Writer) *JSONAuditLogger {
	return &JSONAuditLogger{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

// OpenFile appends to the audit log at path, creating it if needed.
func OpenFile(path string) (*JSONAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l := NewJSONAuditLogger(f)
	l.closer = f
	return l, nil
}

func (l *JSONAuditLogger) LogEvent(event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		"event_time", event.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_type", event.EventType,
		"entity_id", event.EntityID,
		"result", event.Result,
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Info("audit", attrs...)
}

func (l *JSONAuditLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// NopAuditLogger drops every event.
type NopAuditLogger struct{}

func (NopAuditLogger) LogEvent(AuditEvent) {}

// MemoryAuditLogger keeps events in memory.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (l *MemoryAuditLogger) LogEvent(event AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

// Events returns the events recorded so far.
func (l *MemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEvent(nil), l.events...)
}

// OfType filters Events by type.
func (l *MemoryAuditLogger) OfType(eventType string) []AuditEvent {
	var out []AuditEvent
	for _, e := range l.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
