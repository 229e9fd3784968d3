package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/revocation"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// AuthService issues credentials and drives the revocation paths:
// logout revokes the single credential, password change and deactivation
// revoke every credential of the principal.
type AuthService struct {
	principals  repository.PrincipalRepository
	tokens      *auth.TokenManager
	revocations *revocation.Registry
	caches      *cache.Caches
	cfg         config.AuthConfig
	logger      *zap.Logger
}

// AuthDependencies bundles collaborators.
type AuthDependencies struct {
	PrincipalRepo repository.PrincipalRepository
	Tokens        *auth.TokenManager
	Revocations   *revocation.Registry
	Caches        *cache.Caches
	Logger        *zap.Logger
}

// NewAuthService creates the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	return &AuthService{
		principals:  deps.PrincipalRepo,
		tokens:      deps.Tokens,
		revocations: deps.Revocations,
		caches:      deps.Caches,
		cfg:         cfg,
		logger:      deps.Logger,
	}
}

// Login verifies credentials and issues a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.Principal, error) {
	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return "", nil, apperrors.MapError(err)
	}
	if !principal.Active {
		return "", nil, apperrors.NewUnauthorized("principal deactivated")
	}
	if err := auth.ComparePassword(principal.PasswordHash, password); err != nil {
		return "", nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, _, err := s.tokens.GenerateToken(principal.ID, principal.Role)
	if err != nil {
		return "", nil, apperrors.MapError(err)
	}
	return token, principal, nil
}

// Logout revokes the presented credential for its remaining lifetime.
func (s *AuthService) Logout(ctx context.Context, claims domain.CredentialClaims) {
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return
	}
	s.revocations.RevokeCredential(claims.TokenID, claims.PrincipalID, revocation.ReasonLogout, ttl)
}

// ChangePassword updates the hash and revokes every outstanding
// credential of the principal, effective immediately.
func (s *AuthService) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("principal", map[string]any{"principal_id": principalID})
		}
		return apperrors.MapError(err)
	}
	if err := auth.ComparePassword(principal.PasswordHash, oldPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	hashed, err := auth.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return apperrors.MapError(err)
	}
	principal.PasswordHash = hashed
	if err := s.principals.Update(ctx, principal); err != nil {
		return apperrors.NewUnavailable("password update failed", err)
	}

	s.revocations.RevokeAllForPrincipal(principalID, revocation.ReasonPasswordChange, s.cfg.MaxCredentialTTL())
	s.caches.Principals.Invalidate(principalID)
	return nil
}

// Deactivate marks the principal inactive and revokes all of their
// credentials. Inactive is the terminal lifecycle state; principals are
// never deleted.
func (s *AuthService) Deactivate(ctx context.Context, actorID, principalID string) error {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("principal", map[string]any{"principal_id": principalID})
		}
		return apperrors.MapError(err)
	}
	if !principal.Active {
		return nil
	}

	principal.Active = false
	if err := s.principals.Update(ctx, principal); err != nil {
		return apperrors.NewUnavailable("deactivation failed", err)
	}

	s.revocations.RevokeAllForPrincipal(principalID, revocation.ReasonSecurity, s.cfg.MaxCredentialTTL())
	s.caches.Principals.Invalidate(principalID)
	s.logger.Info("principal deactivated",
		zap.String("principal_id", principalID),
		zap.String("actor_id", actorID))
	return nil
}

// RevocationStats exposes live revocation counts for the admin surface.
func (s *AuthService) RevocationStats() revocation.Stats {
	return s.revocations.Stats()
}
