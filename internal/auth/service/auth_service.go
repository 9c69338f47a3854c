package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"reservo/authcore/internal/audit"
	"reservo/authcore/internal/credential"
	ledgerdomain "reservo/authcore/internal/ledger/domain"
	ledgersvc "reservo/authcore/internal/ledger/service"
	principal "reservo/authcore/internal/principal/domain"
	"reservo/authcore/internal/security"
	sessiondomain "reservo/authcore/internal/session/domain"
	sessionsvc "reservo/authcore/internal/session/service"
	"reservo/authcore/internal/telemetry"
	events "reservo/authcore/internal/telemetry/domain"
)

var (
	// ErrEmailTaken is returned when registering with an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPrincipalNotFound is returned when the target principal does not exist.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// CredentialVerifier checks email/secret pairs and enforces lockout.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, secret string) (*principal.Principal, error)
}

// TokenLedger is the refresh token lifecycle surface the auth service needs.
type TokenLedger interface {
	Issue(ctx context.Context, p *principal.Principal, sessionID, deviceFingerprint string) (*ledgersvc.IssueResult, error)
	Rotate(ctx context.Context, presented string) (*ledgersvc.IssueResult, error)
	Lookup(ctx context.Context, presented string) (*ledgerdomain.RefreshTokenRecord, error)
	RevokeAllForPrincipal(ctx context.Context, principalID string) error
}

// SessionRegistry is the session bookkeeping surface the auth service needs.
type SessionRegistry interface {
	Open(ctx context.Context, sessionID string, p *principal.Principal, device sessiondomain.Device, rootHash string) (*sessiondomain.Session, error)
	Touch(ctx context.Context, sessionID, prevLeafHash, newLeafHash string) error
	Get(ctx context.Context, sessionID string) (*sessiondomain.Session, error)
	List(ctx context.Context, principalID string) ([]*sessiondomain.Session, error)
	Close(ctx context.Context, sessionID string) error
	CloseAll(ctx context.Context, principalID string) error
}

// PrincipalStore is the principal persistence surface the auth service needs.
type PrincipalStore interface {
	GetByID(ctx context.Context, id string) (*principal.Principal, error)
	GetByEmail(ctx context.Context, email string) (*principal.Principal, error)
	Create(ctx context.Context, p *principal.Principal) error
	Deactivate(ctx context.Context, id string) error
}

// SecretHasher hashes registration secrets.
type SecretHasher interface {
	Hash(password []byte) (string, error)
}

// TokenPair is one access/refresh pair returned to a client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime in seconds
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Session *sessiondomain.Session
	Tokens  TokenPair
}

// RefreshResult is the outcome of a successful rotation.
type RefreshResult struct {
	SessionID string
	Tokens    TokenPair
}

// RegisterInput describes a new principal.
type RegisterInput struct {
	Email       string
	Name        string
	Secret      string
	Kind        principal.Kind
	Role        string
	Permissions []string
}

// AuthService orchestrates credential verification, the refresh token ledger,
// and the session registry behind the HTTP surface. Audit entries and security
// events are best-effort and never fail a request.
type AuthService struct {
	creds      CredentialVerifier
	ledger     TokenLedger
	registry   SessionRegistry
	principals PrincipalStore
	hasher     SecretHasher
	auditor    audit.AuditLogger
	emitter    telemetry.EventEmitter
}

// NewAuthService wires the auth orchestration. auditor and emitter may be nil.
func NewAuthService(creds CredentialVerifier, ledger TokenLedger, registry SessionRegistry, principals PrincipalStore, hasher SecretHasher, auditor audit.AuditLogger, emitter telemetry.EventEmitter) *AuthService {
	return &AuthService{
		creds:      creds,
		ledger:     ledger,
		registry:   registry,
		principals: principals,
		hasher:     hasher,
		auditor:    auditor,
		emitter:    emitter,
	}
}

// Login verifies credentials, opens a session for the device, and issues the
// root of a fresh refresh token chain plus an access token.
func (s *AuthService) Login(ctx context.Context, email, secret string, device sessiondomain.Device) (*LoginResult, error) {
	p, err := s.creds.Verify(ctx, email, secret)
	if err != nil {
		eventType := events.EventLoginFailure
		if errors.Is(err, credential.ErrAccountLocked) {
			eventType = events.EventAccountLocked
		}
		s.emit(ctx, &events.Event{
			EventType: eventType,
			Source:    "auth",
			IP:        device.IP,
			Metadata:  map[string]string{"email": email},
		})
		return nil, err
	}

	sessionID := uuid.NewString()
	issued, err := s.ledger.Issue(ctx, p, sessionID, device.Fingerprint)
	if err != nil {
		return nil, err
	}
	sess, err := s.registry.Open(ctx, sessionID, p, device, issued.Record.TokenHash)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p.ID, "login", "session/"+sessionID, "")
	s.emit(ctx, &events.Event{
		EventType:   events.EventLoginSuccess,
		PrincipalID: p.ID,
		SessionID:   sessionID,
		Source:      "auth",
		IP:          device.IP,
	})
	return &LoginResult{
		Session: sess,
		Tokens:  tokenPair(issued),
	}, nil
}

// Refresh rotates the presented refresh token and advances the session's leaf
// pointer. Replay and consistency errors surface unchanged from the ledger and
// registry.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	prevHash := security.HashRefreshToken(refreshToken)
	rotated, err := s.ledger.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ledgersvc.ErrTokenReplayed) {
			s.emit(ctx, &events.Event{
				EventType: events.EventTokenReplayed,
				Source:    "auth",
			})
		}
		return nil, err
	}
	sessionID := rotated.Record.SessionID

	if err := s.registry.Touch(ctx, sessionID, prevHash, rotated.Record.TokenHash); err != nil {
		s.emit(ctx, &events.Event{
			EventType:   events.EventSessionFault,
			PrincipalID: rotated.Record.PrincipalID,
			SessionID:   sessionID,
			Source:      "auth",
		})
		return nil, err
	}

	s.emit(ctx, &events.Event{
		EventType:   events.EventTokenRotated,
		PrincipalID: rotated.Record.PrincipalID,
		SessionID:   sessionID,
		Source:      "auth",
	})
	return &RefreshResult{
		SessionID: sessionID,
		Tokens:    tokenPair(rotated),
	}, nil
}

// Logout revokes the chain the presented token belongs to and removes its
// session. Unknown tokens are treated as already logged out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	rec, err := s.ledger.Lookup(ctx, refreshToken)
	if errors.Is(err, ledgersvc.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.registry.Close(ctx, rec.SessionID); err != nil {
		return err
	}
	s.audit(ctx, rec.PrincipalID, "logout", "session/"+rec.SessionID, "")
	s.emit(ctx, &events.Event{
		EventType:   events.EventLogout,
		PrincipalID: rec.PrincipalID,
		SessionID:   rec.SessionID,
		Source:      "auth",
	})
	return nil
}

// Sessions lists the principal's sessions, most recently used first.
func (s *AuthService) Sessions(ctx context.Context, principalID string) ([]*sessiondomain.Session, error) {
	return s.registry.List(ctx, principalID)
}

// CloseSession closes one of the principal's own sessions. Sessions owned by
// other principals are reported as not found.
func (s *AuthService) CloseSession(ctx context.Context, principalID, sessionID string) error {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.PrincipalID != principalID {
		// Do not reveal that the session exists for someone else.
		return sessionsvc.ErrSessionNotFound
	}
	if err := s.registry.Close(ctx, sessionID); err != nil {
		return err
	}
	s.audit(ctx, principalID, "session_close", "session/"+sessionID, "")
	s.emit(ctx, &events.Event{
		EventType:   events.EventSessionClosed,
		PrincipalID: principalID,
		SessionID:   sessionID,
		Source:      "auth",
	})
	return nil
}

// Register creates a new principal. The secret is hashed before storage.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*principal.Principal, error) {
	existing, err := s.principals.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash([]byte(in.Secret))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	role := in.Role
	if role == "" {
		if in.Kind == principal.KindAdmin {
			role = "operator"
		} else {
			role = "customer"
		}
	}
	p := &principal.Principal{
		ID:          uuid.NewString(),
		Email:       in.Email,
		Name:        in.Name,
		Kind:        in.Kind,
		Role:        role,
		Permissions: in.Permissions,
		SecretHash:  hash,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, err
	}

	s.audit(ctx, p.ID, "register", "principal/"+p.ID, "")
	s.emit(ctx, &events.Event{
		EventType:   events.EventRegistered,
		PrincipalID: p.ID,
		Source:      "auth",
	})
	return p, nil
}

// RevokePrincipal deactivates the principal and tears down everything it
// holds: every refresh token chain and every session.
func (s *AuthService) RevokePrincipal(ctx context.Context, principalID string) error {
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPrincipalNotFound
	}
	if err := s.principals.Deactivate(ctx, principalID); err != nil {
		return err
	}
	if err := s.ledger.RevokeAllForPrincipal(ctx, principalID); err != nil {
		return err
	}
	if err := s.registry.CloseAll(ctx, principalID); err != nil {
		return err
	}

	s.audit(ctx, principalID, "revoke_all", "principal/"+principalID, "")
	s.emit(ctx, &events.Event{
		EventType:   events.EventPrincipalRevoked,
		PrincipalID: principalID,
		Source:      "auth",
	})
	return nil
}

func (s *AuthService) audit(ctx context.Context, principalID, action, resource, metadata string) {
	if s.auditor != nil {
		s.auditor.LogEvent(ctx, principalID, action, resource, metadata)
	}
}

func (s *AuthService) emit(ctx context.Context, event *events.Event) {
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	telemetry.EmitAsync(s.emitter, ctx, event)
}

func tokenPair(res *ledgersvc.IssueResult) TokenPair {
	expiresIn := int64(time.Until(res.AccessExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return TokenPair{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    expiresIn,
	}
}
