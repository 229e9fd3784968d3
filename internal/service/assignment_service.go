package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// claimRetries bounds how often a lost conditional claim triggers a fresh
// worker selection before the operation gives up.
const claimRetries = 3

// AssignmentService handles round-robin ticket assignment, manual
// override and the auto-assign opt-in/opt-out approval workflow.
type AssignmentService struct {
	principals repository.PrincipalRepository
	tickets    repository.TicketRepository
	toggles    repository.ToggleRequestRepository
	audit      repository.AuditRepository
	caches     *cache.Caches
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	PrincipalRepo repository.PrincipalRepository
	TicketRepo    repository.TicketRepository
	ToggleRepo    repository.ToggleRequestRepository
	AuditRepo     repository.AuditRepository
	Caches        *cache.Caches
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		principals: deps.PrincipalRepo,
		tickets:    deps.TicketRepo,
		toggles:    deps.ToggleRepo,
		audit:      deps.AuditRepo,
		caches:     deps.Caches,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// NextEligibleWorker returns the worker that round robin would pick now:
// role WORKER, active, opted in, least recently assigned (never-assigned
// first, ties by smallest id).
func (s *AssignmentService) NextEligibleWorker(ctx context.Context) (*domain.Principal, error) {
	worker, err := s.principals.NextEligibleWorker(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotEligible("no eligible worker", nil)
		}
		return nil, apperrors.NewUnavailable("worker selection failed", err)
	}
	return worker, nil
}

// AutoAssignTicket assigns the ticket to the next eligible worker. The
// selection plus timestamp bump is pushed down to a store-level
// conditional update; a lost claim re-selects a bounded number of times.
// When no worker is eligible the caller decides what to do with the
// unassigned ticket; nothing is queued or retried here.
func (s *AssignmentService) AutoAssignTicket(ctx context.Context, ticketID string) (*domain.Principal, error) {
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < claimRetries; attempt++ {
		worker, err := s.NextEligibleWorker(ctx)
		if err != nil {
			return nil, err
		}

		assignedAt := s.now()
		claimed, err := s.tickets.AssignWithClaim(ctx, ticketID, worker.ID, worker.LastAssignedAt, assignedAt)
		if err != nil {
			return nil, apperrors.NewUnavailable("assignment aborted", err)
		}
		if !claimed {
			// another caller claimed this worker; select again
			continue
		}

		worker.LastAssignedAt = &assignedAt
		s.caches.Principals.Invalidate(worker.ID)
		s.metrics.RecordAssignment("auto")
		s.logger.Info("ticket auto-assigned",
			zap.String("ticket_id", ticketID),
			zap.String("worker_id", worker.ID))
		return worker, nil
	}
	return nil, apperrors.NewNotEligible("no eligible worker", map[string]any{"ticket_id": ticketID})
}

// ManualAssignTicket assigns the ticket to an explicit target, bypassing
// round-robin eligibility entirely except for the active check. This is
// the only path for assigning to non-worker roles or overriding rotation.
func (s *AssignmentService) ManualAssignTicket(ctx context.Context, ticketID, targetID, actorID string) (*domain.Ticket, error) {
	target, err := s.principals.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("principal", map[string]any{"principal_id": targetID})
		}
		return nil, apperrors.NewUnavailable("principal lookup failed", err)
	}
	if !target.Active {
		return nil, apperrors.NewConflict("target inactive", map[string]any{"principal_id": targetID})
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldAssignee := ticket.AssignedPrincipalID
	if err := s.tickets.UpdateAssignee(ctx, ticketID, &target.ID); err != nil {
		return nil, apperrors.NewUnavailable("assignment aborted", err)
	}
	ticket.AssignedPrincipalID = &target.ID

	s.recordAudit(ctx, actorID, ticketID, domain.AuditActionManualAssign,
		map[string]any{"assigned_principal_id": oldAssignee},
		map[string]any{"assigned_principal_id": target.ID})
	s.metrics.RecordAssignment("manual")
	return ticket, nil
}

// RequestToggle files a worker's request to change their auto-assign
// opt-in. At most one pending request may exist per principal.
func (s *AssignmentService) RequestToggle(ctx context.Context, principalID string, kind domain.ToggleKind, reason string) (*domain.ToggleRequest, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("principal", map[string]any{"principal_id": principalID})
		}
		return nil, apperrors.NewUnavailable("principal lookup failed", err)
	}
	if !principal.Active {
		return nil, apperrors.NewConflict("principal inactive", map[string]any{"principal_id": principalID})
	}

	request := &domain.ToggleRequest{
		PrincipalID: principalID,
		Kind:        kind,
		Reason:      reason,
	}
	if err := s.toggles.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrPendingExists) {
			return nil, apperrors.NewConflictingRequest("a pending toggle request already exists", map[string]any{"principal_id": principalID})
		}
		return nil, apperrors.NewUnavailable("toggle request creation failed", err)
	}
	return request, nil
}

// Decide resolves a pending toggle request. Approval is the only
// transition that mutates the principal's auto-assign flag; both outcomes
// are terminal.
func (s *AssignmentService) Decide(ctx context.Context, requestID, actorID string, outcome domain.ToggleStatus, notes string) (*domain.ToggleRequest, error) {
	if outcome != domain.ToggleStatusApproved && outcome != domain.ToggleStatusRejected {
		return nil, apperrors.NewValidationError("outcome must be APPROVED or REJECTED", nil)
	}

	request, err := s.toggles.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("toggle request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.NewUnavailable("toggle request lookup failed", err)
	}
	if request.Status != domain.ToggleStatusPending {
		return nil, apperrors.NewConflict("toggle request already decided", map[string]any{"request_id": requestID})
	}

	decidedAt := s.now()
	decided, err := s.toggles.Decide(ctx, requestID, outcome, actorID, notes, decidedAt)
	if err != nil {
		return nil, apperrors.NewUnavailable("toggle decision failed", err)
	}
	if !decided {
		return nil, apperrors.NewConflict("toggle request already decided", map[string]any{"request_id": requestID})
	}

	oldEnabled := false
	if outcome == domain.ToggleStatusApproved {
		enabled := request.Kind == domain.ToggleKindEnable
		oldEnabled = !enabled
		if err := s.principals.SetAutoAssign(ctx, request.PrincipalID, enabled); err != nil {
			return nil, apperrors.NewUnavailable("auto-assign flag update failed", err)
		}
		s.caches.Principals.Invalidate(request.PrincipalID)
	}

	request.Status = outcome
	request.AdminNotes = notes
	request.DecidedBy = &actorID
	request.DecidedAt = &decidedAt

	s.recordAudit(ctx, actorID, request.PrincipalID, domain.AuditActionToggleDecided,
		map[string]any{"status": domain.ToggleStatusPending, "auto_assign_enabled": oldEnabled},
		map[string]any{"status": outcome, "kind": request.Kind})
	return request, nil
}

// AssignmentStat is one row of the administrative statistics surface.
type AssignmentStat struct {
	PrincipalID       string     `json:"principal_id"`
	ActiveTicketCount int        `json:"active_ticket_count"`
	AutoAssignEnabled bool       `json:"auto_assign_enabled"`
	LastAssignedAt    *time.Time `json:"last_assigned_at"`
}

// AssignmentStats returns per-worker assignment load.
func (s *AssignmentService) AssignmentStats(ctx context.Context) ([]AssignmentStat, error) {
	workers, err := s.principals.ListWorkers(ctx)
	if err != nil {
		return nil, apperrors.NewUnavailable("worker listing failed", err)
	}
	counts, err := s.tickets.CountActiveByAssignee(ctx)
	if err != nil {
		return nil, apperrors.NewUnavailable("ticket count failed", err)
	}

	stats := make([]AssignmentStat, 0, len(workers))
	for _, w := range workers {
		stats = append(stats, AssignmentStat{
			PrincipalID:       w.ID,
			ActiveTicketCount: counts[w.ID],
			AutoAssignEnabled: w.AutoAssignEnabled,
			LastAssignedAt:    w.LastAssignedAt,
		})
	}
	return stats, nil
}

func (s *AssignmentService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewUnavailable("ticket lookup failed", err)
	}
	return ticket, nil
}

// recordAudit writes an immutable audit entry. Best effort: a failed
// write is logged and never fails the primary operation.
func (s *AssignmentService) recordAudit(ctx context.Context, actorID, targetID string, action domain.AuditAction, oldValue, newValue map[string]any) {
	entry := &domain.AuditEntry{
		ActorID:  actorID,
		TargetID: targetID,
		Action:   action,
		OldValue: oldValue,
		NewValue: newValue,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", string(action)),
			zap.String("target_id", targetID),
			zap.Error(err))
	}
}
