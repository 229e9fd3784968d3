package domain

import "time"

// CredentialClaims is the decoded payload of an accepted credential.
// The authentication collaborator produces it; the core only ever checks
// the principal id and role against the revocation registry and the
// principal's active flag.
type CredentialClaims struct {
	TokenID     string
	PrincipalID string
	Role        Role
	ExpiresAt   time.Time
}
