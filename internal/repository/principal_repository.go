package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// PrincipalRepository handles persistence for principals.
type PrincipalRepository interface {
	Create(ctx context.Context, principal *domain.Principal) error
	Update(ctx context.Context, principal *domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	NextEligibleWorker(ctx context.Context) (*domain.Principal, error)
	SetAutoAssign(ctx context.Context, id string, enabled bool) error
	ListWorkers(ctx context.Context) ([]domain.Principal, error)
	ListActiveAdmins(ctx context.Context) ([]domain.Principal, error)
}

type principalRepository struct {
	pool *pgxpool.Pool
}

// NewPrincipalRepository instantiates the repository.
func NewPrincipalRepository(pool *pgxpool.Pool) PrincipalRepository {
	return &principalRepository{pool: pool}
}

const principalColumns = `id, name, email, password_hash, role, active_flag, auto_assign_enabled, last_assigned_at, created_at, updated_at`

func scanPrincipal(row pgx.Row, p *domain.Principal) error {
	return row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.PasswordHash,
		&p.Role,
		&p.Active,
		&p.AutoAssignEnabled,
		&p.LastAssignedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func (r *principalRepository) Create(ctx context.Context, principal *domain.Principal) error {
	const query = `
        INSERT INTO principals (name, email, password_hash, role, active_flag, auto_assign_enabled)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		principal.Name,
		principal.Email,
		principal.PasswordHash,
		principal.Role,
		principal.Active,
		principal.AutoAssignEnabled,
	).Scan(&principal.ID, &principal.CreatedAt, &principal.UpdatedAt)
}

func (r *principalRepository) Update(ctx context.Context, principal *domain.Principal) error {
	const query = `
        UPDATE principals
        SET name=$1, email=$2, password_hash=$3, role=$4, active_flag=$5, auto_assign_enabled=$6, updated_at=NOW()
        WHERE id=$7`

	cmd, err := r.pool.Exec(ctx, query,
		principal.Name,
		principal.Email,
		principal.PasswordHash,
		principal.Role,
		principal.Active,
		principal.AutoAssignEnabled,
		principal.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *principalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE id=$1`

	var p domain.Principal
	if err := scanPrincipal(r.pool.QueryRow(ctx, query, id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *principalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE email=$1`

	var p domain.Principal
	if err := scanPrincipal(r.pool.QueryRow(ctx, query, email), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// NextEligibleWorker returns the active, opted-in worker least recently
// assigned. Never-assigned workers sort first; ties break on smallest id
// for deterministic ordering.
func (r *principalRepository) NextEligibleWorker(ctx context.Context) (*domain.Principal, error) {
	const query = `
        SELECT ` + principalColumns + `
        FROM principals
        WHERE role='WORKER' AND active_flag=TRUE AND auto_assign_enabled=TRUE
        ORDER BY last_assigned_at ASC NULLS FIRST, id ASC
        LIMIT 1`

	var p domain.Principal
	if err := scanPrincipal(r.pool.QueryRow(ctx, query), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *principalRepository) SetAutoAssign(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE principals SET auto_assign_enabled=$1, updated_at=NOW() WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, enabled, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *principalRepository) ListWorkers(ctx context.Context) ([]domain.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE role='WORKER' ORDER BY id ASC`
	return r.list(ctx, query)
}

func (r *principalRepository) ListActiveAdmins(ctx context.Context) ([]domain.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE role='ADMIN' AND active_flag=TRUE ORDER BY id ASC`
	return r.list(ctx, query)
}

func (r *principalRepository) list(ctx context.Context, query string, args ...any) ([]domain.Principal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Principal
	for rows.Next() {
		var p domain.Principal
		if err := scanPrincipal(rows, &p); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
