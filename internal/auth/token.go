package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// TokenManager handles issuing and validating JWT credentials. Each token
// carries a unique id (jti) so a single credential can be revoked without
// touching the principal's other sessions.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Claims describes the JWT payload.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for the principal.
func (tm *TokenManager) GenerateToken(principalID string, role domain.Role) (string, domain.CredentialClaims, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", domain.CredentialClaims{}, err
	}
	return tokenString, claims.Decoded(), nil
}

// ParseToken validates the signature and expiry and returns the decoded
// credential payload.
func (tm *TokenManager) ParseToken(tokenStr string) (domain.CredentialClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return domain.CredentialClaims{}, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.CredentialClaims{}, errors.New("invalid token claims")
	}
	return claims.Decoded(), nil
}

// Decoded converts JWT claims into the transport-neutral payload the rest
// of the system consumes.
func (c *Claims) Decoded() domain.CredentialClaims {
	decoded := domain.CredentialClaims{
		TokenID:     c.ID,
		PrincipalID: c.Subject,
		Role:        c.Role,
	}
	if c.ExpiresAt != nil {
		decoded.ExpiresAt = c.ExpiresAt.Time
	}
	return decoded
}
