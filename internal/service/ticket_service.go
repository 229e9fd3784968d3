package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/presence"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// Pusher is the presence surface the orchestrator needs.
type Pusher interface {
	SendToPrincipal(principalID, eventType string, data any) bool
	SendToRole(role domain.Role, eventType string, data any) int
}

// TicketService orchestrates ticket state transitions: persist the change,
// durably record notifications, push them in real time and drop cache
// entries the change made stale, in that order. The in-memory stores give
// no cross-component ordering on their own.
type TicketService struct {
	tickets       repository.TicketRepository
	principals    repository.PrincipalRepository
	notifications repository.NotificationRepository
	assignment    *AssignmentService
	pusher        Pusher
	caches        *cache.Caches
	logger        *zap.Logger
	now           func() time.Time
}

// TicketDependencies bundles collaborators.
type TicketDependencies struct {
	TicketRepo       repository.TicketRepository
	PrincipalRepo    repository.PrincipalRepository
	NotificationRepo repository.NotificationRepository
	Assignment       *AssignmentService
	Pusher           Pusher
	Caches           *cache.Caches
	Logger           *zap.Logger
}

// NewTicketService creates the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:       deps.TicketRepo,
		principals:    deps.PrincipalRepo,
		notifications: deps.NotificationRepo,
		assignment:    deps.Assignment,
		pusher:        deps.Pusher,
		caches:        deps.Caches,
		logger:        deps.Logger,
		now:           time.Now,
	}
}

// CreateTicket persists a new pending ticket, attempts auto-assignment
// and fans a creation notification out to all active administrators.
// A NotEligible outcome leaves the ticket unassigned; that is the
// caller's recovery path, not an error of creation.
func (s *TicketService) CreateTicket(ctx context.Context, requesterID, title, description string) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		RequesterID: requesterID,
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusPending,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewUnavailable("ticket creation failed", err)
	}

	worker, err := s.assignment.AutoAssignTicket(ctx, ticket.ID)
	switch {
	case err == nil:
		ticket.AssignedPrincipalID = &worker.ID
		s.notifyAssignee(ctx, ticket, worker.ID, "Ticket assigned",
			fmt.Sprintf("Ticket %q has been assigned to you", ticket.Title))
	case apperrors.IsCode(err, "NOT_ELIGIBLE"):
		s.logger.Info("no eligible worker, ticket left unassigned",
			zap.String("ticket_id", ticket.ID))
	default:
		return nil, err
	}

	s.notifyAdmins(ctx, ticket, "Ticket created",
		fmt.Sprintf("New ticket %q awaits triage", ticket.Title))
	s.invalidateTicketCaches()
	return ticket, nil
}

// Transition moves a ticket along its status machine. Invalid edges are
// rejected outright; terminal tickets never move again.
func (s *TicketService) Transition(ctx context.Context, ticketID string, next domain.TicketStatus, actorID, comment string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.CanTransitionTo(next) {
		return nil, apperrors.NewInvalidTransition(
			fmt.Sprintf("cannot transition from %s to %s", ticket.Status, next),
			map[string]any{"ticket_id": ticketID})
	}

	var resolvedAt *time.Time
	if next == domain.TicketStatusResolved {
		now := s.now()
		resolvedAt = &now
	}
	if err := s.tickets.UpdateStatus(ctx, ticketID, next, resolvedAt); err != nil {
		return nil, apperrors.NewUnavailable("status update failed", err)
	}
	ticket.Status = next
	ticket.ResolvedAt = resolvedAt

	if comment != "" {
		if err := s.tickets.CreateComment(ctx, ticketID, actorID, comment); err != nil {
			s.logger.Warn("comment write failed",
				zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}

	message := fmt.Sprintf("Ticket %q is now %s", ticket.Title, next)
	if next == domain.TicketStatusResolved {
		s.notifyAdmins(ctx, ticket, "Ticket resolved", message)
	} else if ticket.AssignedPrincipalID != nil {
		s.notifyAssignee(ctx, ticket, *ticket.AssignedPrincipalID, "Ticket status updated", message)
	}

	s.invalidateTicketCaches()
	return ticket, nil
}

// AutoAssign runs round robin for an existing ticket and notifies the
// chosen worker.
func (s *TicketService) AutoAssign(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	worker, err := s.assignment.AutoAssignTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.notifyAssignee(ctx, ticket, worker.ID, "Ticket assigned",
		fmt.Sprintf("Ticket %q has been assigned to you", ticket.Title))
	s.invalidateTicketCaches()
	return ticket, nil
}

// ManualAssign overrides rotation with an explicit target and notifies it.
func (s *TicketService) ManualAssign(ctx context.Context, ticketID, targetID, actorID string) (*domain.Ticket, error) {
	ticket, err := s.assignment.ManualAssignTicket(ctx, ticketID, targetID, actorID)
	if err != nil {
		return nil, err
	}
	s.notifyAssignee(ctx, ticket, targetID, "Ticket assigned",
		fmt.Sprintf("Ticket %q has been assigned to you", ticket.Title))
	s.invalidateTicketCaches()
	return ticket, nil
}

// notifyAssignee durably records a notification for one recipient, then
// attempts a single real-time push. A missed push is silently dropped:
// the record is the system of record and is observed on next poll.
func (s *TicketService) notifyAssignee(ctx context.Context, ticket *domain.Ticket, recipientID, title, message string) {
	notification := &domain.Notification{
		RecipientID: recipientID,
		TicketID:    ticket.ID,
		Title:       title,
		Message:     message,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		s.logger.Warn("notification write failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	s.pusher.SendToPrincipal(recipientID, presence.EventNewNotification, notification)
}

// notifyAdmins records one notification per active administrator and
// pushes a single event to the admin role group.
func (s *TicketService) notifyAdmins(ctx context.Context, ticket *domain.Ticket, title, message string) {
	admins, err := s.principals.ListActiveAdmins(ctx)
	if err != nil {
		s.logger.Warn("admin listing failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}

	var first *domain.Notification
	for i := range admins {
		notification := &domain.Notification{
			RecipientID: admins[i].ID,
			TicketID:    ticket.ID,
			Title:       title,
			Message:     message,
		}
		if err := s.notifications.Create(ctx, notification); err != nil {
			s.logger.Warn("notification write failed",
				zap.String("recipient_id", admins[i].ID), zap.Error(err))
			continue
		}
		if first == nil {
			first = notification
		}
	}
	if first != nil {
		s.pusher.SendToRole(domain.RoleAdmin, presence.EventNewNotification, first)
	}
}

// invalidateTicketCaches drops cached query results made stale by a
// ticket change. Tag based: broad on purpose, over-eviction is cheaper
// than a stale dashboard.
func (s *TicketService) invalidateTicketCaches() {
	s.caches.Queries.InvalidateTag(cache.TagTickets)
	s.caches.Queries.InvalidateTag(cache.TagDashboard)
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewUnavailable("ticket lookup failed", err)
	}
	return ticket, nil
}
