package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	token, issued, err := tm.GenerateToken("p1", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if issued.TokenID == "" {
		t.Fatalf("every credential needs a unique id")
	}

	decoded, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded.PrincipalID != "p1" || decoded.Role != domain.RoleAdmin {
		t.Fatalf("decoded payload mismatch: %+v", decoded)
	}
	if decoded.TokenID != issued.TokenID {
		t.Fatalf("token id must survive the round trip")
	}
	if time.Until(decoded.ExpiresAt) <= 0 {
		t.Fatalf("fresh token must not be expired")
	}
}

func TestTokenIDsAreUnique(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	_, a, err := tm.GenerateToken("p1", domain.RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, b, err := tm.GenerateToken("p1", domain.RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.TokenID == b.TokenID {
		t.Fatalf("two credentials for the same principal must carry distinct ids")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", time.Hour).GenerateToken("p1", domain.RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewTokenManager("secret-b", time.Hour).ParseToken(token); err == nil {
		t.Fatalf("foreign signature must be rejected")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	claims := &Claims{
		Role: domain.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-old",
			Subject:   "p1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewTokenManager("secret", time.Hour).ParseToken(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestParseRejectsWrongSigningMethod(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-none",
			Subject:   "p1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewTokenManager("secret", time.Hour).ParseToken(token); err == nil {
		t.Fatalf("unsigned token must be rejected")
	}
}
