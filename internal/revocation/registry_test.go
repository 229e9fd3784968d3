package revocation

import (
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	now := time.Now()
	r := NewRegistry(nil)
	r.clock = func() time.Time { return now }
	return r, &now
}

func TestRevokeCredential(t *testing.T) {
	r, _ := newTestRegistry(t)
	if r.IsRevoked("jti-1") {
		t.Fatalf("unknown credential must not be revoked")
	}

	r.RevokeCredential("jti-1", "p1", ReasonLogout, time.Hour)
	if !r.IsRevoked("jti-1") {
		t.Fatalf("revocation must be visible immediately")
	}
	if r.IsRevoked("jti-2") {
		t.Fatalf("other credentials must stay valid")
	}
}

func TestRevokeAllForPrincipalImmediacy(t *testing.T) {
	r, _ := newTestRegistry(t)
	if r.IsPrincipalRevoked("p1") {
		t.Fatalf("principal not yet revoked")
	}

	r.RevokeAllForPrincipal("p1", ReasonPasswordChange, time.Hour)
	if !r.IsPrincipalRevoked("p1") {
		t.Fatalf("principal revocation must take effect immediately")
	}
	if r.IsPrincipalRevoked("p2") {
		t.Fatalf("other principals unaffected")
	}
}

func TestRevocationExpiry(t *testing.T) {
	r, now := newTestRegistry(t)
	r.RevokeCredential("jti-1", "p1", ReasonLogout, time.Minute)
	r.RevokeAllForPrincipal("p1", ReasonSecurity, time.Hour)

	*now = now.Add(2 * time.Minute)
	if r.IsRevoked("jti-1") {
		t.Fatalf("expired credential record must not revoke")
	}
	if !r.IsPrincipalRevoked("p1") {
		t.Fatalf("principal record still live")
	}

	*now = now.Add(time.Hour)
	if r.IsPrincipalRevoked("p1") {
		t.Fatalf("expired principal record must not revoke")
	}
}

func TestStatsCountsLiveRecordsByReason(t *testing.T) {
	r, now := newTestRegistry(t)
	r.RevokeCredential("jti-1", "p1", ReasonLogout, time.Minute)
	r.RevokeCredential("jti-2", "p2", ReasonLogout, time.Hour)
	r.RevokeAllForPrincipal("p3", ReasonSecurity, time.Hour)

	stats := r.Stats()
	if stats.Total != 3 {
		t.Fatalf("want 3 live records, got %d", stats.Total)
	}
	if stats.ByReason[ReasonLogout] != 2 {
		t.Fatalf("want 2 logout records, got %d", stats.ByReason[ReasonLogout])
	}

	*now = now.Add(2 * time.Minute)
	stats = r.Stats()
	if stats.Total != 2 {
		t.Fatalf("expired record must drop from stats, got %d", stats.Total)
	}
}

func TestSweep(t *testing.T) {
	r, now := newTestRegistry(t)
	r.RevokeCredential("jti-1", "p1", ReasonLogout, time.Minute)
	r.RevokeAllForPrincipal("p2", ReasonSecurity, time.Minute)
	r.RevokeCredential("jti-3", "p3", ReasonLogout, time.Hour)

	dropped := r.Sweep(now.Add(5 * time.Minute))
	if dropped != 2 {
		t.Fatalf("want 2 swept, got %d", dropped)
	}
	if !r.IsRevoked("jti-3") {
		t.Fatalf("live record must survive the sweep")
	}
}
