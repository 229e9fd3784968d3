package dto

import "github.com/spec-kit/helpdesk-core/internal/domain"

// ToggleRequestPayload payload for creating an auto-assign toggle request.
type ToggleRequestPayload struct {
	Kind   domain.ToggleKind `json:"kind"`
	Reason string            `json:"reason"`
}

// DecisionRequest payload for resolving a toggle request.
type DecisionRequest struct {
	Outcome domain.ToggleStatus `json:"outcome"`
	Notes   string              `json:"notes"`
}
