package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/revocation"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

const principalKey = "auth_principal"
const claimsKey = "auth_claims"

// Middleware validates bearer credentials. A credential is accepted only
// if it decodes, is not itself revoked, its principal is not revoked and
// the principal is active; any failing check is a hard rejection.
type Middleware struct {
	tokens      *TokenManager
	revocations *revocation.Registry
	caches      *cache.Caches
	principals  repository.PrincipalRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, revocations *revocation.Registry, caches *cache.Caches, principals repository.PrincipalRepository) *Middleware {
	return &Middleware{
		tokens:      tokens,
		revocations: revocations,
		caches:      caches,
		principals:  principals,
	}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, principal, err := m.Authenticate(c.Context(), parts[1])
	if err != nil {
		return err
	}

	c.Locals(claimsKey, claims)
	c.Locals(principalKey, principal)
	return c.Next()
}

// Authenticate runs the full acceptance sequence for a raw credential.
// Decoded payloads and principal records are served from their cache
// namespaces; revocation is checked on every call regardless, so cached
// state can never outlive a revocation.
func (m *Middleware) Authenticate(ctx context.Context, token string) (domain.CredentialClaims, *domain.Principal, error) {
	claims, ok := m.caches.Credentials.Get(token)
	if !ok {
		decoded, err := m.tokens.ParseToken(token)
		if err != nil {
			return domain.CredentialClaims{}, nil, apperrors.NewUnauthorized("invalid token")
		}
		claims = decoded
		if ttl := time.Until(claims.ExpiresAt); ttl > 0 {
			m.caches.Credentials.SetTTL(token, claims, ttl)
		}
	}

	if m.revocations.IsRevoked(claims.TokenID) {
		return domain.CredentialClaims{}, nil, apperrors.NewUnauthorized("credential revoked")
	}
	if m.revocations.IsPrincipalRevoked(claims.PrincipalID) {
		return domain.CredentialClaims{}, nil, apperrors.NewUnauthorized("credentials revoked for principal")
	}

	principal, ok := m.caches.Principals.Get(claims.PrincipalID)
	if !ok {
		loaded, err := m.principals.GetByID(ctx, claims.PrincipalID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.CredentialClaims{}, nil, apperrors.NewUnauthorized("principal not found")
			}
			return domain.CredentialClaims{}, nil, apperrors.MapError(err)
		}
		principal = *loaded
		m.caches.Principals.Set(claims.PrincipalID, principal)
	}
	if !principal.Active {
		return domain.CredentialClaims{}, nil, apperrors.NewUnauthorized("principal deactivated")
	}

	return claims, &principal, nil
}

// PrincipalFromContext retrieves the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}

// ClaimsFromContext retrieves the decoded credential payload.
func ClaimsFromContext(c *fiber.Ctx) (domain.CredentialClaims, bool) {
	val := c.Locals(claimsKey)
	if val == nil {
		return domain.CredentialClaims{}, false
	}
	claims, ok := val.(domain.CredentialClaims)
	return claims, ok
}
