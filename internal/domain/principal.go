package domain

import "time"

// Role enumerates the kinds of authenticated actors.
type Role string

const (
	RoleUser   Role = "USER"
	RoleWorker Role = "WORKER"
	RoleAdmin  Role = "ADMIN"
)

// Principal models an authenticated actor: end user, support worker or administrator.
type Principal struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Role              Role
	Active            bool
	AutoAssignEnabled bool
	LastAssignedAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EligibleForAutoAssign reports whether the principal can receive round-robin work.
func (p *Principal) EligibleForAutoAssign() bool {
	return p.Role == RoleWorker && p.Active && p.AutoAssignEnabled
}
