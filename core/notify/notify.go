package notify

import (
	"log/slog"
	"sync"
	"time"

	"healthledger/core/logging"
)

// NotificationType represents who a notification is meant for
type NotificationType string

const (
	NotifyAdmin NotificationType = "admin"
	NotifyUser  NotificationType = "user"
)

// Event names carried in Notification.Event.
const (
	EventTamperingDetected = "tampering_detected"
	EventChainInvalid      = "chain_invalid"
	EventAlertNotRecorded  = "alert_not_recorded"
)

// Notification holds the data for a notification event
type Notification struct {
	Event     string
	TxID      string
	RecordID  string
	Reason    string
	Type      NotificationType
	Recipient string
	Time      time.Time
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to the operator log. It is the default
// channel; mail or webhook delivery plugs in behind the same interface.
type LogNotifier struct {
	Recipient string
	log       *slog.Logger
}

func NewLogNotifier(logger *slog.Logger, recipient string) *LogNotifier {
	return &LogNotifier{Recipient: recipient, log: logging.Component(logger, "notify")}
}

func (l *LogNotifier) Notify(n Notification) {
	if n.Recipient == "" {
		n.Recipient = l.Recipient
	}
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	l.log.Warn("operator notification",
		"event", n.Event,
		"to", n.Recipient,
		"type", n.Type,
		"tx_id", n.TxID,
		"record_id", n.RecordID,
		"reason", n.Reason)
}

// Admin builds an admin notification.
func Admin(event, txID, recordID, reason string) Notification {
	return Notification{
		Event:    event,
		TxID:     txID,
		RecordID: recordID,
		Reason:   reason,
		Type:     NotifyAdmin,
		Time:     time.Now().UTC(),
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// Sent returns a copy of what was delivered so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// Fanout delivers to several notifiers in order.
type Fanout []Notifier

func (f Fanout) Notify(n Notification) {
	for _, nt := range f {
		if nt != nil {
			nt.Notify(n)
		}
	}
}
