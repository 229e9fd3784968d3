package domain

import "time"

// ToggleKind says which direction a worker wants their auto-assign flag moved.
type ToggleKind string

const (
	ToggleKindEnable  ToggleKind = "ENABLE"
	ToggleKindDisable ToggleKind = "DISABLE"
)

// ToggleStatus enumerates the request workflow states.
type ToggleStatus string

const (
	ToggleStatusPending  ToggleStatus = "PENDING"
	ToggleStatusApproved ToggleStatus = "APPROVED"
	ToggleStatusRejected ToggleStatus = "REJECTED"
)

// ToggleRequest is a worker's request to change their auto-assign opt-in.
// At most one PENDING request may exist per principal; APPROVED and
// REJECTED are terminal.
type ToggleRequest struct {
	ID          string
	PrincipalID string
	Kind        ToggleKind
	Status      ToggleStatus
	Reason      string
	AdminNotes  string
	DecidedBy   *string
	DecidedAt   *time.Time
	CreatedAt   time.Time
}
