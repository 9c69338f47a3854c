package domain

import (
	"errors"
	"time"
)

// Kind distinguishes the two principal populations served by the auth core.
type Kind string

const (
	// KindAdmin identifies back-office operators.
	KindAdmin Kind = "admin"
	// KindClient identifies end users of the public product.
	KindClient Kind = "client"
)

// Principal represents an authenticatable identity: an admin operator or a client user.
// FailedAttempts and LockUntil track consecutive credential failures; LockUntil is nil
// while the account is unlocked.
type Principal struct {
	ID             string
	Email          string
	Name           string
	Kind           Kind
	Role           string
	Permissions    []string
	SecretHash     string
	Active         bool
	Verified       bool
	FailedAttempts int
	LockUntil      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks required fields on the principal.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return errors.New("principal ID is required")
	}
	if p.Email == "" {
		return errors.New("principal email is required")
	}
	if p.Kind != KindAdmin && p.Kind != KindClient {
		return errors.New("principal kind must be admin or client")
	}
	if p.SecretHash == "" {
		return errors.New("principal secret hash is required")
	}
	return nil
}

// Locked reports whether the principal is locked out at the given instant.
// A lock expires on its own once LockUntil passes.
func (p *Principal) Locked(now time.Time) bool {
	return p.LockUntil != nil && now.Before(*p.LockUntil)
}
