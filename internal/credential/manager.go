package credential

import (
	"context"
	"errors"
	"log"
	"time"

	"reservo/authcore/internal/principal/domain"
)

var (
	// ErrInvalidCredential is returned for unknown emails, inactive accounts, and
	// wrong secrets alike, so callers cannot distinguish the three.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrAccountLocked is returned while a lockout window is in effect.
	ErrAccountLocked = errors.New("account locked")
)

// PrincipalRepository is the subset of principal persistence the manager needs.
type PrincipalRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	RecordFailure(ctx context.Context, id string, now time.Time, threshold int, lockFor time.Duration) (int, *time.Time, error)
	ResetLockout(ctx context.Context, id string) error
}

// Hasher compares a plaintext secret with its stored hash.
type Hasher interface {
	Compare(hash string, password []byte) error
}

// Manager verifies credentials and enforces the failure lockout policy: after
// threshold consecutive failures the account is locked for lockFor, an absolute
// window that later failures do not extend.
type Manager struct {
	principals PrincipalRepository
	hasher     Hasher
	threshold  int
	lockFor    time.Duration
	now        func() time.Time
}

// NewManager returns a credential manager with the given failure threshold and lock window.
func NewManager(principals PrincipalRepository, hasher Hasher, threshold int, lockFor time.Duration) *Manager {
	return &Manager{
		principals: principals,
		hasher:     hasher,
		threshold:  threshold,
		lockFor:    lockFor,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Verify checks email and secret against the stored principal. The lock check
// runs before the secret comparison, so attempts during a lockout never touch
// the hash and never consume a failure slot. A correct secret on a locked
// account still returns ErrAccountLocked.
func (m *Manager) Verify(ctx context.Context, email, secret string) (*domain.Principal, error) {
	p, err := m.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Active {
		return nil, ErrInvalidCredential
	}

	now := m.now()
	if p.Locked(now) {
		return nil, ErrAccountLocked
	}

	if err := m.hasher.Compare(p.SecretHash, []byte(secret)); err != nil {
		if recErr := m.RecordFailure(ctx, p.ID); recErr != nil {
			log.Printf("credential: record failure for %s: %v", p.ID, recErr)
		}
		return nil, ErrInvalidCredential
	}

	if err := m.RecordSuccess(ctx, p.ID); err != nil {
		log.Printf("credential: reset lockout for %s: %v", p.ID, err)
	}
	p.FailedAttempts = 0
	p.LockUntil = nil
	return p, nil
}

// RecordFailure registers one failed attempt. Crossing the threshold starts the
// lock window.
func (m *Manager) RecordFailure(ctx context.Context, principalID string) error {
	_, _, err := m.principals.RecordFailure(ctx, principalID, m.now(), m.threshold, m.lockFor)
	return err
}

// RecordSuccess clears the failure counter and any expired lock.
func (m *Manager) RecordSuccess(ctx context.Context, principalID string) error {
	return m.principals.ResetLockout(ctx, principalID)
}
