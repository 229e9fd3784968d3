package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved || s == TicketStatusCancelled
}

// CanTransitionTo reports whether the edge s -> next is permitted.
// Valid edges: PENDING -> IN_PROGRESS -> RESOLVED, plus CANCELLED from
// any non-terminal state.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case TicketStatusInProgress:
		return s == TicketStatusPending
	case TicketStatusResolved:
		return s == TicketStatusInProgress
	case TicketStatusCancelled:
		return true
	default:
		return false
	}
}

// Ticket is the aggregate for support requests. The persistent store owns
// the canonical record; this service only coordinates status and assignee.
type Ticket struct {
	ID                  string
	RequesterID         string
	Title               string
	Description         string
	Status              TicketStatus
	AssignedPrincipalID *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ResolvedAt          *time.Time
}
