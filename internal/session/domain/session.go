package domain

import (
	"errors"
	"time"

	principal "reservo/authcore/internal/principal/domain"
)

// Device describes the client a session was opened from. Captured once at
// login; only LastSeenAt changes afterwards.
type Device struct {
	Platform    string
	UserAgent   string
	DisplayName string
	IP          string
	Fingerprint string
}

// Session is one authenticated device context for a principal. CurrentTokenHash
// points at the leaf of the session's refresh token chain; it advances on every
// rotation and is the registry's consistency anchor.
type Session struct {
	ID               string
	PrincipalID      string
	PrincipalKind    principal.Kind
	CurrentTokenHash string
	Device           Device
	CreatedAt        time.Time
	LastSeenAt       *time.Time
}

// Validate checks required fields on the session.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session ID is required")
	}
	if s.PrincipalID == "" {
		return errors.New("session principal ID is required")
	}
	if s.PrincipalKind != principal.KindAdmin && s.PrincipalKind != principal.KindClient {
		return errors.New("session principal kind must be admin or client")
	}
	if s.CurrentTokenHash == "" {
		return errors.New("session leaf token hash is required")
	}
	return nil
}
