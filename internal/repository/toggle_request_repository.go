package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// ErrPendingExists is returned when a second pending toggle request is
// created for the same principal; a partial unique index backs the
// one-at-a-time invariant.
var ErrPendingExists = errors.New("pending toggle request already exists")

// ToggleRequestRepository handles persistence for auto-assign toggle requests.
type ToggleRequestRepository interface {
	Create(ctx context.Context, request *domain.ToggleRequest) error
	GetByID(ctx context.Context, id string) (*domain.ToggleRequest, error)
	ListPending(ctx context.Context) ([]domain.ToggleRequest, error)
	Decide(ctx context.Context, id string, status domain.ToggleStatus, decidedBy, notes string, decidedAt time.Time) (bool, error)
}

type toggleRequestRepository struct {
	pool *pgxpool.Pool
}

// NewToggleRequestRepository instantiates the repository.
func NewToggleRequestRepository(pool *pgxpool.Pool) ToggleRequestRepository {
	return &toggleRequestRepository{pool: pool}
}

const toggleColumns = `id, principal_id, kind, status, reason, admin_notes, decided_by, decided_at, created_at`

func scanToggle(row pgx.Row, t *domain.ToggleRequest) error {
	return row.Scan(
		&t.ID,
		&t.PrincipalID,
		&t.Kind,
		&t.Status,
		&t.Reason,
		&t.AdminNotes,
		&t.DecidedBy,
		&t.DecidedAt,
		&t.CreatedAt,
	)
}

func (r *toggleRequestRepository) Create(ctx context.Context, request *domain.ToggleRequest) error {
	const query = `
        INSERT INTO toggle_requests (principal_id, kind, status, reason)
        VALUES ($1,$2,'PENDING',$3)
        RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		request.PrincipalID,
		request.Kind,
		request.Reason,
	).Scan(&request.ID, &request.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPendingExists
		}
		return err
	}
	request.Status = domain.ToggleStatusPending
	return nil
}

func (r *toggleRequestRepository) GetByID(ctx context.Context, id string) (*domain.ToggleRequest, error) {
	const query = `SELECT ` + toggleColumns + ` FROM toggle_requests WHERE id=$1`

	var t domain.ToggleRequest
	if err := scanToggle(r.pool.QueryRow(ctx, query, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *toggleRequestRepository) ListPending(ctx context.Context) ([]domain.ToggleRequest, error) {
	const query = `SELECT ` + toggleColumns + ` FROM toggle_requests WHERE status='PENDING' ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ToggleRequest
	for rows.Next() {
		var t domain.ToggleRequest
		if err := scanToggle(rows, &t); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// Decide flips a pending request to a terminal status. Returns false when
// the request was not pending, so no request ever transitions twice.
func (r *toggleRequestRepository) Decide(ctx context.Context, id string, status domain.ToggleStatus, decidedBy, notes string, decidedAt time.Time) (bool, error) {
	const query = `
        UPDATE toggle_requests
        SET status=$1, decided_by=$2, admin_notes=$3, decided_at=$4
        WHERE id=$5 AND status='PENDING'`

	cmd, err := r.pool.Exec(ctx, query, status, decidedBy, notes, decidedAt, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
