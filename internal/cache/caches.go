package cache

import (
	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/observability"
)

// Tags shared by writers and invalidators of the query cache.
const (
	TagTickets   = "tickets"
	TagDashboard = "dashboard"
)

// Caches bundles the service's cache namespaces behind one lifecycle.
type Caches struct {
	Principals  *Store[domain.Principal]
	Credentials *Store[domain.CredentialClaims]
	Queries     *Store[any]
}

// NewCaches builds the three namespaces with their configured TTLs.
func NewCaches(cfg config.CacheConfig, metrics *observability.Metrics) *Caches {
	return &Caches{
		Principals:  NewStore[domain.Principal]("principals", cfg.PrincipalTTL(), metrics),
		Credentials: NewStore[domain.CredentialClaims]("credentials", cfg.CredentialTTL(), metrics),
		Queries:     NewStore[any]("queries", cfg.QueryTTL(), metrics),
	}
}

// Sweepables returns the namespaces for registration with a Sweeper.
func (c *Caches) Sweepables() []Sweepable {
	return []Sweepable{c.Principals, c.Credentials, c.Queries}
}

// Shutdown clears all namespaces.
func (c *Caches) Shutdown() {
	c.Principals.InvalidateAll()
	c.Credentials.InvalidateAll()
	c.Queries.InvalidateAll()
}
