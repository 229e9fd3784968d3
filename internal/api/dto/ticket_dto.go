package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// ManualAssignRequest payload.
type ManualAssignRequest struct {
	PrincipalID string `json:"principal_id"`
}

// TicketResponse is the wire shape of a ticket.
type TicketResponse struct {
	ID                  string              `json:"id"`
	RequesterID         string              `json:"requester_id"`
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	Status              domain.TicketStatus `json:"status"`
	AssignedPrincipalID *string             `json:"assigned_principal_id"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	ResolvedAt          *time.Time          `json:"resolved_at"`
}

// FromTicket maps a domain ticket to its response shape.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                  t.ID,
		RequesterID:         t.RequesterID,
		Title:               t.Title,
		Description:         t.Description,
		Status:              t.Status,
		AssignedPrincipalID: t.AssignedPrincipalID,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		ResolvedAt:          t.ResolvedAt,
	}
}
