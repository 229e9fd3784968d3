package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// TicketRepository handles persistence for tickets. The canonical ticket
// record lives in the store; this service only coordinates status and
// assignee.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	UpdateAssignee(ctx context.Context, ticketID string, assigneeID *string) error
	AssignWithClaim(ctx context.Context, ticketID, workerID string, observed *time.Time, assignedAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus, resolvedAt *time.Time) error
	CreateComment(ctx context.Context, ticketID, authorID, body string) error
	CountActiveByAssignee(ctx context.Context) (map[string]int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, requester_id, title, description, status, assigned_principal_id, created_at, updated_at, resolved_at`

func scanTicket(row pgx.Row, t *domain.Ticket) error {
	return row.Scan(
		&t.ID,
		&t.RequesterID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.AssignedPrincipalID,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ResolvedAt,
	)
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (requester_id, title, description, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		ticket.RequesterID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`

	var t domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepository) UpdateAssignee(ctx context.Context, ticketID string, assigneeID *string) error {
	const query = `UPDATE tickets SET assigned_principal_id=$1, updated_at=NOW() WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, assigneeID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AssignWithClaim assigns the ticket and bumps the worker's
// last_assigned_at in one statement. The claim only fires while the row
// still carries the value the scheduler observed, so two concurrent
// selections of the same worker serialize at the store and neither leaves
// partial state behind.
func (r *ticketRepository) AssignWithClaim(ctx context.Context, ticketID, workerID string, observed *time.Time, assignedAt time.Time) (bool, error) {
	const query = `
        WITH claimed AS (
            UPDATE principals
            SET last_assigned_at=$4, updated_at=NOW()
            WHERE id=$2 AND last_assigned_at IS NOT DISTINCT FROM $3
            RETURNING id
        )
        UPDATE tickets
        SET assigned_principal_id=$2, updated_at=NOW()
        WHERE id=$1 AND EXISTS (SELECT 1 FROM claimed)`

	cmd, err := r.pool.Exec(ctx, query, ticketID, workerID, observed, assignedAt)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus, resolvedAt *time.Time) error {
	const query = `UPDATE tickets SET status=$1, resolved_at=$2, updated_at=NOW() WHERE id=$3`

	cmd, err := r.pool.Exec(ctx, query, status, resolvedAt, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) CreateComment(ctx context.Context, ticketID, authorID, body string) error {
	const query = `INSERT INTO ticket_comments (ticket_id, author_id, body) VALUES ($1,$2,$3)`

	_, err := r.pool.Exec(ctx, query, ticketID, authorID, body)
	return err
}

// CountActiveByAssignee returns open-ticket counts keyed by assignee,
// feeding the assignment statistics surface.
func (r *ticketRepository) CountActiveByAssignee(ctx context.Context) (map[string]int, error) {
	const query = `
        SELECT assigned_principal_id, COUNT(*)
        FROM tickets
        WHERE assigned_principal_id IS NOT NULL AND status IN ('PENDING','IN_PROGRESS')
        GROUP BY assigned_principal_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
