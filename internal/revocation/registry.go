package revocation

import (
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-core/internal/observability"
)

// Reason classifies why a credential was invalidated before expiry.
type Reason string

const (
	ReasonLogout         Reason = "logout"
	ReasonPasswordChange Reason = "password_change"
	ReasonSecurity       Reason = "security"
)

// record marks a revoked subject until expiresAt (epoch ms).
type record struct {
	expiresAt int64
	reason    Reason
}

func (r record) expired(nowMs int64) bool {
	return nowMs >= r.expiresAt
}

// Stats summarizes live revocation records.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[Reason]int `json:"by_reason"`
}

// Registry is the authoritative in-memory record of invalidated
// credentials. Two subject kinds share it: single credentials (by token
// id) and all credentials of a principal. A credential is valid only if
// neither its own record nor an all-principal record for its owner is
// present and unexpired.
type Registry struct {
	metrics *observability.Metrics

	mu         sync.RWMutex
	tokens     map[string]record
	principals map[string]record

	clock func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{
		metrics:    metrics,
		tokens:     make(map[string]record),
		principals: make(map[string]record),
		clock:      time.Now,
	}
}

// RevokeCredential invalidates a single credential. The TTL should match
// the credential's remaining lifetime; a longer record buys nothing.
func (r *Registry) RevokeCredential(tokenID, principalID string, reason Reason, ttl time.Duration) {
	_ = principalID // kept for audit symmetry with RevokeAllForPrincipal
	expiresAt := r.clock().Add(ttl).UnixMilli()
	r.mu.Lock()
	r.tokens[tokenID] = record{expiresAt: expiresAt, reason: reason}
	r.mu.Unlock()
	r.metrics.RecordRevocation(string(reason))
}

// RevokeAllForPrincipal invalidates every credential of a principal,
// effective immediately for all subsequent checks. Intentionally coarse:
// this is the emergency path (password change, deactivation, forced
// logout), not selective session management. The TTL must cover the
// longest-lived credential type issued.
func (r *Registry) RevokeAllForPrincipal(principalID string, reason Reason, ttl time.Duration) {
	expiresAt := r.clock().Add(ttl).UnixMilli()
	r.mu.Lock()
	r.principals[principalID] = record{expiresAt: expiresAt, reason: reason}
	r.mu.Unlock()
	r.metrics.RecordRevocation(string(reason))
}

// IsRevoked reports whether the credential itself has been revoked.
// Expired records are deleted on the spot.
func (r *Registry) IsRevoked(tokenID string) bool {
	return r.lookup(r.tokens, tokenID)
}

// IsPrincipalRevoked reports whether all credentials of the principal
// have been revoked.
func (r *Registry) IsPrincipalRevoked(principalID string) bool {
	return r.lookup(r.principals, principalID)
}

func (r *Registry) lookup(m map[string]record, key string) bool {
	nowMs := r.clock().UnixMilli()

	r.mu.RLock()
	rec, ok := m[key]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if rec.expired(nowMs) {
		r.mu.Lock()
		if cur, ok := m[key]; ok && cur.expired(nowMs) {
			delete(m, key)
		}
		r.mu.Unlock()
		return false
	}
	return true
}

// Stats returns counts of live records by reason.
func (r *Registry) Stats() Stats {
	nowMs := r.clock().UnixMilli()
	stats := Stats{ByReason: make(map[Reason]int)}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.tokens {
		if !rec.expired(nowMs) {
			stats.Total++
			stats.ByReason[rec.reason]++
		}
	}
	for _, rec := range r.principals {
		if !rec.expired(nowMs) {
			stats.Total++
			stats.ByReason[rec.reason]++
		}
	}
	return stats
}

// Sweep removes expired records, sharing the cache sweeper's interval
// discipline.
func (r *Registry) Sweep(now time.Time) int {
	nowMs := now.UnixMilli()
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for key, rec := range r.tokens {
		if rec.expired(nowMs) {
			delete(r.tokens, key)
			dropped++
		}
	}
	for key, rec := range r.principals {
		if rec.expired(nowMs) {
			delete(r.principals, key)
			dropped++
		}
	}
	return dropped
}

// Shutdown clears all records.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = make(map[string]record)
	r.principals = make(map[string]record)
}
