package security

import (
	"strings"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) *TokenProvider {
	t.Helper()
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	return p
}

func TestIssueAndValidateAccess(t *testing.T) {
	p := newTestProvider(t)

	token, expiresAt, err := p.IssueAccess("sess-1", "principal-1", "client", "customer", []string{"booking.read", "booking.write"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expected future expiration")
	}

	claims, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != "principal-1" {
		t.Errorf("subject = %q, want principal-1", claims.Subject)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("session_id = %q, want sess-1", claims.SessionID)
	}
	if claims.Kind != "client" {
		t.Errorf("kind = %q, want client", claims.Kind)
	}
	if claims.Role != "customer" {
		t.Errorf("role = %q, want customer", claims.Role)
	}
	if len(claims.Permissions) != 2 || claims.Permissions[0] != "booking.read" {
		t.Errorf("unexpected permissions: %v", claims.Permissions)
	}
	if claims.ID == "" {
		t.Error("expected non-empty jti")
	}
}

func TestValidateAccess_Malformed(t *testing.T) {
	p := newTestProvider(t)

	for _, tokenString := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := p.ValidateAccess(tokenString); err == nil {
			t.Errorf("ValidateAccess(%q) should fail", tokenString)
		}
	}
}

func TestValidateAccess_Tampered(t *testing.T) {
	p := newTestProvider(t)

	token, _, err := p.IssueAccess("sess-1", "principal-1", "client", "customer", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token segments, got %d", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := p.ValidateAccess(tampered); err == nil {
		t.Error("tampered token should fail validation")
	}
}

func TestValidateAccess_WrongIssuer(t *testing.T) {
	p := newTestProvider(t)
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	other := NewTokenProvider(signer, pub, "other-issuer", "test-audience", 15*time.Minute)

	token, _, err := other.IssueAccess("sess-1", "principal-1", "admin", "owner", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err == nil {
		t.Error("token with wrong issuer should fail validation")
	}
}

func TestValidateAccess_WrongAudience(t *testing.T) {
	p := newTestProvider(t)
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	other := NewTokenProvider(signer, pub, "test-issuer", "other-audience", 15*time.Minute)

	token, _, err := other.IssueAccess("sess-1", "principal-1", "admin", "owner", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err == nil {
		t.Error("token with wrong audience should fail validation")
	}
}

func TestValidateAccess_Expired(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	expired := NewTokenProvider(signer, pub, "test-issuer", "test-audience", -1*time.Minute)

	token, _, err := expired.IssueAccess("sess-1", "principal-1", "client", "customer", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := expired.ValidateAccess(token); err == nil {
		t.Error("expired token should fail validation")
	}
}
