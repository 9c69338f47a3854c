package domain

import (
	"testing"
	"time"
)

func validPrincipal() *Principal {
	return &Principal{
		ID:         "p-1",
		Email:      "user@example.com",
		Name:       "User",
		Kind:       KindClient,
		Role:       "customer",
		SecretHash: "$2a$12$hash",
		Active:     true,
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Principal)
		wantErr bool
	}{
		{"valid client", func(p *Principal) {}, false},
		{"valid admin", func(p *Principal) { p.Kind = KindAdmin }, false},
		{"missing ID", func(p *Principal) { p.ID = "" }, true},
		{"missing email", func(p *Principal) { p.Email = "" }, true},
		{"empty kind", func(p *Principal) { p.Kind = "" }, true},
		{"unknown kind", func(p *Principal) { p.Kind = "service" }, true},
		{"missing secret hash", func(p *Principal) { p.SecretHash = "" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPrincipal()
			tc.mutate(p)
			err := p.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLocked(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	p := validPrincipal()
	if p.Locked(now) {
		t.Error("principal with nil LockUntil should not be locked")
	}

	p.LockUntil = &future
	if !p.Locked(now) {
		t.Error("principal with future LockUntil should be locked")
	}

	p.LockUntil = &past
	if p.Locked(now) {
		t.Error("principal with past LockUntil should not be locked")
	}

	p.LockUntil = &now
	if p.Locked(now) {
		t.Error("lock boundary is exclusive: now == LockUntil means unlocked")
	}
}
