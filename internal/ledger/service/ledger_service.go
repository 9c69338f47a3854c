package service

import (
	"context"
	"errors"
	"log"
	"time"

	"reservo/authcore/internal/ledger/domain"
	principal "reservo/authcore/internal/principal/domain"
	"reservo/authcore/internal/security"
)

var (
	// ErrTokenNotFound is returned when no ledger record matches the presented token.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenExpired is returned when the matched record's lifetime has passed.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrTokenReplayed is returned when a previously consumed token is presented
	// again. The whole chain is revoked before this error is returned.
	ErrTokenReplayed = errors.New("refresh token replayed")
)

// TokenRepository is the ledger persistence surface the service needs.
type TokenRepository interface {
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshTokenRecord, error)
	Create(ctx context.Context, rec *domain.RefreshTokenRecord) error
	ConsumeAndCreate(ctx context.Context, oldHash string, successor *domain.RefreshTokenRecord, now time.Time) (bool, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllBySession(ctx context.Context, sessionID string) error
	RevokeAllByPrincipal(ctx context.Context, principalID string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PrincipalRepository resolves principals during rotation.
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (*principal.Principal, error)
}

// SessionRepository lets the ledger tear down a session when its chain is
// revoked for replay.
type SessionRepository interface {
	Delete(ctx context.Context, sessionID string) error
}

// AccessIssuer mints access tokens for rotation results.
type AccessIssuer interface {
	IssueAccess(sessionID, principalID, kind, role string, permissions []string) (string, time.Time, error)
}

// IssueResult carries the raw refresh token (returned to the caller exactly
// once), its ledger record, and the paired access token.
type IssueResult struct {
	Record          *domain.RefreshTokenRecord
	RefreshToken    string
	AccessToken     string
	AccessExpiresAt time.Time
}

// Ledger manages the lifecycle of opaque refresh tokens: issuance, one-time
// rotation, replay detection, and revocation. Each session owns a chain of
// records; presenting a consumed link revokes the entire chain.
type Ledger struct {
	tokens     TokenRepository
	principals PrincipalRepository
	sessions   SessionRepository
	issuer     AccessIssuer
	refreshTTL time.Duration
	now        func() time.Time
}

// NewLedger returns a refresh token ledger. refreshTTL is the absolute lifetime
// of each issued token.
func NewLedger(tokens TokenRepository, principals PrincipalRepository, sessions SessionRepository, issuer AccessIssuer, refreshTTL time.Duration) *Ledger {
	return &Ledger{
		tokens:     tokens,
		principals: principals,
		sessions:   sessions,
		issuer:     issuer,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a fresh refresh token as the root of a new chain for the given
// session, plus a paired access token.
func (l *Ledger) Issue(ctx context.Context, p *principal.Principal, sessionID, deviceFingerprint string) (*IssueResult, error) {
	raw, err := security.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := l.now()
	rec := &domain.RefreshTokenRecord{
		TokenHash:         security.HashRefreshToken(raw),
		SessionID:         sessionID,
		PrincipalID:       p.ID,
		PrincipalKind:     p.Kind,
		DeviceFingerprint: deviceFingerprint,
		IssuedAt:          now,
		ExpiresAt:         now.Add(l.refreshTTL),
	}
	if err := l.tokens.Create(ctx, rec); err != nil {
		return nil, err
	}
	access, accessExp, err := l.issuer.IssueAccess(sessionID, p.ID, string(p.Kind), p.Role, p.Permissions)
	if err != nil {
		return nil, err
	}
	return &IssueResult{
		Record:          rec,
		RefreshToken:    raw,
		AccessToken:     access,
		AccessExpiresAt: accessExp,
	}, nil
}

// Lookup resolves a presented refresh token to its ledger record without
// consuming it. Returns ErrTokenNotFound when no record matches.
func (l *Ledger) Lookup(ctx context.Context, presented string) (*domain.RefreshTokenRecord, error) {
	rec, err := l.tokens.GetByHash(ctx, security.HashRefreshToken(presented))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTokenNotFound
	}
	return rec, nil
}

// Rotate consumes the presented refresh token and issues its successor plus a
// new access token. The consume is atomic: under concurrent presentation of the
// same token exactly one caller succeeds, and every other caller takes the
// replay path. Presenting a token that was already consumed revokes the whole
// chain and tears down the session.
func (l *Ledger) Rotate(ctx context.Context, presented string) (*IssueResult, error) {
	hash := security.HashRefreshToken(presented)
	rec, err := l.tokens.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTokenNotFound
	}
	if rec.Revoked {
		l.revokeChain(ctx, rec.SessionID)
		return nil, ErrTokenReplayed
	}
	now := l.now()
	if rec.Expired(now) {
		return nil, ErrTokenExpired
	}

	p, err := l.principals.GetByID(ctx, rec.PrincipalID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Active {
		l.revokeChain(ctx, rec.SessionID)
		return nil, ErrTokenNotFound
	}

	raw, err := security.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	successor := &domain.RefreshTokenRecord{
		TokenHash:         security.HashRefreshToken(raw),
		SessionID:         rec.SessionID,
		PrincipalID:       rec.PrincipalID,
		PrincipalKind:     rec.PrincipalKind,
		DeviceFingerprint: rec.DeviceFingerprint,
		IssuedAt:          now,
		ExpiresAt:         now.Add(l.refreshTTL),
	}
	won, err := l.tokens.ConsumeAndCreate(ctx, hash, successor, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Someone consumed this token between our read and the update.
		l.revokeChain(ctx, rec.SessionID)
		return nil, ErrTokenReplayed
	}

	access, accessExp, err := l.issuer.IssueAccess(rec.SessionID, p.ID, string(p.Kind), p.Role, p.Permissions)
	if err != nil {
		return nil, err
	}
	return &IssueResult{
		Record:          successor,
		RefreshToken:    raw,
		AccessToken:     access,
		AccessExpiresAt: accessExp,
	}, nil
}

// revokeChain revokes every record in the session's chain and removes the
// session itself. Best effort; failures are logged, not returned, so the
// caller's replay error is never masked.
func (l *Ledger) revokeChain(ctx context.Context, sessionID string) {
	if err := l.tokens.RevokeAllBySession(ctx, sessionID); err != nil {
		log.Printf("ledger: revoke chain for session %s: %v", sessionID, err)
	}
	if err := l.sessions.Delete(ctx, sessionID); err != nil {
		log.Printf("ledger: delete session %s: %v", sessionID, err)
	}
}

// Revoke marks the single record for the presented token revoked without
// touching the rest of its chain. Idempotent; unknown tokens are a no-op.
func (l *Ledger) Revoke(ctx context.Context, presented string) error {
	return l.tokens.Revoke(ctx, security.HashRefreshToken(presented))
}

// RevokeSession revokes the session's entire token chain. Idempotent.
func (l *Ledger) RevokeSession(ctx context.Context, sessionID string) error {
	return l.tokens.RevokeAllBySession(ctx, sessionID)
}

// RevokeAllForPrincipal revokes every chain across all of the principal's sessions.
func (l *Ledger) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	return l.tokens.RevokeAllByPrincipal(ctx, principalID)
}

// Sweep deletes records that expired more than grace ago. Returns how many
// rows were removed.
func (l *Ledger) Sweep(ctx context.Context, grace time.Duration) (int64, error) {
	return l.tokens.DeleteExpiredBefore(ctx, l.now().Add(-grace))
}
