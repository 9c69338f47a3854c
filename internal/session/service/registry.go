package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	principal "reservo/authcore/internal/principal/domain"
	"reservo/authcore/internal/session/domain"
)

var (
	// ErrSessionNotFound is returned when the session does not exist or belongs
	// to another principal.
	ErrSessionNotFound = errors.New("session not found")
	// ErrConsistencyFault is returned when the registry's leaf pointer disagrees
	// with the ledger after a rotation. The session is force-closed before this
	// error is returned.
	ErrConsistencyFault = errors.New("session state inconsistent")
)

// SessionRepository is the session persistence surface the registry needs.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	DeleteByPrincipal(ctx context.Context, principalID string) error
	ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Session, error)
	AdvanceLeaf(ctx context.Context, sessionID, prevHash, newHash string, at time.Time) (bool, error)
}

// ChainRevoker revokes a session's refresh token chain when the registry
// force-closes the session.
type ChainRevoker interface {
	RevokeSession(ctx context.Context, sessionID string) error
}

// Registry tracks the authenticated sessions of each principal: one entry per
// device, carrying device metadata and a pointer to the leaf of the session's
// refresh token chain.
type Registry struct {
	sessions SessionRepository
	ledger   ChainRevoker
	now      func() time.Time
}

// NewRegistry returns a session registry.
func NewRegistry(sessions SessionRepository, ledger ChainRevoker) *Registry {
	return &Registry{
		sessions: sessions,
		ledger:   ledger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Open records a new session for the principal with the given device metadata.
// The caller supplies the session ID so the token chain can be issued against
// it beforehand; rootHash is the hash of the chain's root refresh token.
func (r *Registry) Open(ctx context.Context, sessionID string, p *principal.Principal, device domain.Device, rootHash string) (*domain.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	s := &domain.Session{
		ID:               sessionID,
		PrincipalID:      p.ID,
		PrincipalKind:    p.Kind,
		CurrentTokenHash: rootHash,
		Device:           device,
		CreatedAt:        r.now(),
	}
	if err := r.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Touch advances the session's leaf pointer after a rotation, from prevLeafHash
// to newLeafHash, and stamps last-seen. If the stored leaf does not match
// prevLeafHash the registry and ledger disagree about the chain; the session is
// force-closed (chain revoked, entry removed) and ErrConsistencyFault returned.
func (r *Registry) Touch(ctx context.Context, sessionID, prevLeafHash, newLeafHash string) error {
	at := r.now()
	ok, err := r.sessions.AdvanceLeaf(ctx, sessionID, prevLeafHash, newLeafHash, at)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	log.Printf("session: leaf mismatch on %s, force-closing", sessionID)
	if err := r.ledger.RevokeSession(ctx, sessionID); err != nil {
		log.Printf("session: revoke chain for %s: %v", sessionID, err)
	}
	if err := r.sessions.Delete(ctx, sessionID); err != nil {
		log.Printf("session: delete %s: %v", sessionID, err)
	}
	return ErrConsistencyFault
}

// Get returns the session, or ErrSessionNotFound.
func (r *Registry) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns the principal's sessions, most recently used first.
func (r *Registry) List(ctx context.Context, principalID string) ([]*domain.Session, error) {
	return r.sessions.ListByPrincipal(ctx, principalID)
}

// Close revokes the session's token chain and removes the entry. Closing a
// session that is already gone is not an error.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	if err := r.ledger.RevokeSession(ctx, sessionID); err != nil {
		return err
	}
	return r.sessions.Delete(ctx, sessionID)
}

// CloseAll revokes and removes every session of the principal.
func (r *Registry) CloseAll(ctx context.Context, principalID string) error {
	sessions, err := r.sessions.ListByPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := r.ledger.RevokeSession(ctx, s.ID); err != nil {
			return err
		}
	}
	return r.sessions.DeleteByPrincipal(ctx, principalID)
}
