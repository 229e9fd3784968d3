package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/revocation"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// stubPrincipals serves GetByID from a map and counts lookups so tests
// can observe cache behavior; the other methods are never reached here.
type stubPrincipals struct {
	byID    map[string]domain.Principal
	lookups int
}

func (s *stubPrincipals) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	s.lookups++
	p, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (s *stubPrincipals) Create(context.Context, *domain.Principal) error { return pgx.ErrNoRows }
func (s *stubPrincipals) Update(context.Context, *domain.Principal) error { return pgx.ErrNoRows }
func (s *stubPrincipals) GetByEmail(context.Context, string) (*domain.Principal, error) {
	return nil, pgx.ErrNoRows
}
func (s *stubPrincipals) NextEligibleWorker(context.Context) (*domain.Principal, error) {
	return nil, pgx.ErrNoRows
}
func (s *stubPrincipals) SetAutoAssign(context.Context, string, bool) error { return pgx.ErrNoRows }
func (s *stubPrincipals) ListWorkers(context.Context) ([]domain.Principal, error) {
	return nil, nil
}
func (s *stubPrincipals) ListActiveAdmins(context.Context) ([]domain.Principal, error) {
	return nil, nil
}

type middlewareFixture struct {
	tokens      *TokenManager
	revocations *revocation.Registry
	caches      *cache.Caches
	principals  *stubPrincipals
	mw          *Middleware
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	tokens := NewTokenManager("test-secret", time.Hour)
	revocations := revocation.NewRegistry(nil)
	caches := cache.NewCaches(config.CacheConfig{
		PrincipalTTLSeconds:  300,
		CredentialTTLSeconds: 3600,
		QueryTTLSeconds:      60,
	}, nil)
	principals := &stubPrincipals{byID: make(map[string]domain.Principal)}

	return &middlewareFixture{
		tokens:      tokens,
		revocations: revocations,
		caches:      caches,
		principals:  principals,
		mw:          NewMiddleware(tokens, revocations, caches, principals),
	}
}

func (fx *middlewareFixture) issueFor(t *testing.T, id string, role domain.Role, active bool) (string, domain.CredentialClaims) {
	t.Helper()
	fx.principals.byID[id] = domain.Principal{ID: id, Role: role, Active: active}
	token, claims, err := fx.tokens.GenerateToken(id, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token, claims
}

func TestAuthenticateValidCredential(t *testing.T) {
	fx := newMiddlewareFixture(t)
	token, issued := fx.issueFor(t, "p1", domain.RoleWorker, true)

	claims, principal, err := fx.mw.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.TokenID != issued.TokenID {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if principal.ID != "p1" {
		t.Fatalf("want principal p1, got %s", principal.ID)
	}
}

func TestAuthenticateCachesDecodedState(t *testing.T) {
	fx := newMiddlewareFixture(t)
	token, _ := fx.issueFor(t, "p1", domain.RoleWorker, true)

	for i := 0; i < 3; i++ {
		if _, _, err := fx.mw.Authenticate(context.Background(), token); err != nil {
			t.Fatalf("authenticate %d: %v", i, err)
		}
	}
	if fx.principals.lookups != 1 {
		t.Fatalf("principal must be served from cache after first load, got %d lookups", fx.principals.lookups)
	}
	if _, ok := fx.caches.Credentials.Get(token); !ok {
		t.Fatalf("decoded credential must be cached")
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	fx := newMiddlewareFixture(t)

	_, _, err := fx.mw.Authenticate(context.Background(), "not-a-token")
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("want UNAUTHORIZED, got %v", err)
	}
}

func TestAuthenticateRevokedCredential(t *testing.T) {
	fx := newMiddlewareFixture(t)
	token, issued := fx.issueFor(t, "p1", domain.RoleWorker, true)

	// warm the credential cache, then revoke
	if _, _, err := fx.mw.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	fx.revocations.RevokeCredential(issued.TokenID, "p1", revocation.ReasonLogout, time.Hour)

	_, _, err := fx.mw.Authenticate(context.Background(), token)
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("cached credential must still be rejected after revocation, got %v", err)
	}
}

func TestAuthenticatePrincipalWideRevocation(t *testing.T) {
	fx := newMiddlewareFixture(t)
	token, _ := fx.issueFor(t, "p1", domain.RoleWorker, true)

	if _, _, err := fx.mw.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	fx.revocations.RevokeAllForPrincipal("p1", revocation.ReasonPasswordChange, time.Hour)

	_, _, err := fx.mw.Authenticate(context.Background(), token)
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("principal-wide revocation must reject every credential, got %v", err)
	}
}

func TestAuthenticateInactivePrincipal(t *testing.T) {
	fx := newMiddlewareFixture(t)
	token, _ := fx.issueFor(t, "p1", domain.RoleWorker, false)

	_, _, err := fx.mw.Authenticate(context.Background(), token)
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("inactive principal must be rejected, got %v", err)
	}
}

func TestAuthenticateUnknownPrincipal(t *testing.T) {
	fx := newMiddlewareFixture(t)
	token, _, err := fx.tokens.GenerateToken("ghost", domain.RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, _, err = fx.mw.Authenticate(context.Background(), token)
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("unknown principal must be rejected, got %v", err)
	}
}
