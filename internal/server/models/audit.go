package models

import "time"

// AuditEvent is an append-only record of a state change.
type AuditEvent struct {
	ID          int64
	ActorID     *int64
	Verb        string
	Action      string
	TargetType  string
	TargetID    int64
	EvaluatorID int64
	SupplierID  *int64
	Metadata    map[string]any
	CreatedAt   time.Time
}

// EmailEvent records one attempted notification to one recipient.
type EmailEvent struct {
	ID        int64
	Recipient string
	Subject   string
	Category  string
	Status    string
	Error     string
	Meta      map[string]any
	CreatedAt time.Time
}

const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)
