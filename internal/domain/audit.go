package domain

import "time"

// AuditAction enumerates recorded administrative actions.
type AuditAction string

const (
	AuditActionManualAssign  AuditAction = "MANUAL_ASSIGN"
	AuditActionToggleDecided AuditAction = "TOGGLE_DECIDED"
)

// AuditEntry is an immutable record of an administrative action with
// before/after snapshots. Writes are best effort and never block the
// primary operation.
type AuditEntry struct {
	ID        string
	ActorID   string
	TargetID  string
	Action    AuditAction
	OldValue  map[string]any
	NewValue  map[string]any
	CreatedAt time.Time
}
