package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindBotStarted           Kind = "bot_started"
	KindBotStopped           Kind = "bot_stopped"
	KindScanCompleted        Kind = "scan_completed"
	KindScanFailed           Kind = "scan_failed"
	KindLiquidationSucceeded Kind = "liquidation_succeeded"
	KindLiquidationFailed    Kind = "liquidation_failed"
	KindLiquidationSkipped   Kind = "liquidation_skipped"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a structured notification handed to every sink
type Event struct {
	ID        uuid.UUID
	Kind      Kind
	Severity  Severity
	Timestamp time.Time
	Title     string
	Fields    map[string]interface{}
}

// NewEvent stamps an event with a fresh id and the current time
func NewEvent(kind Kind, severity Severity, title string, fields map[string]interface{}) Event {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		Title:     title,
		Fields:    fields,
	}
}

// Sink delivers events to one destination (chat, event bus)
type Sink interface {
	Name() string
	Notify(ctx context.Context, event Event) error
}
