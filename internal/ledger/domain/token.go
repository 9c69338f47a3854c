package domain

import (
	"errors"
	"time"

	principal "reservo/authcore/internal/principal/domain"
)

// RefreshTokenRecord is the ledger entry for one opaque refresh token. Records
// are keyed by the SHA-256 hash of the token; the raw value is never stored.
// Rotation links records through ReplacedBy, forming a chain per session.
type RefreshTokenRecord struct {
	TokenHash         string
	SessionID         string
	PrincipalID       string
	PrincipalKind     principal.Kind
	DeviceFingerprint string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Revoked           bool
	ReplacedBy        string
	LastUsedAt        *time.Time
}

// Validate checks required fields on the record.
func (r *RefreshTokenRecord) Validate() error {
	if r.TokenHash == "" {
		return errors.New("token hash is required")
	}
	if r.SessionID == "" {
		return errors.New("session ID is required")
	}
	if r.PrincipalID == "" {
		return errors.New("principal ID is required")
	}
	if r.PrincipalKind != principal.KindAdmin && r.PrincipalKind != principal.KindClient {
		return errors.New("principal kind must be admin or client")
	}
	if r.ExpiresAt.IsZero() {
		return errors.New("expiration is required")
	}
	return nil
}

// Expired reports whether the record's lifetime has passed at the given instant.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
