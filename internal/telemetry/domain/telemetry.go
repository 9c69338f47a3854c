package domain

import "time"

// Security event types emitted by the auth core.
const (
	EventLoginSuccess     = "login_success"
	EventLoginFailure     = "login_failure"
	EventAccountLocked    = "account_locked"
	EventTokenRotated     = "token_rotated"
	EventTokenReplayed    = "token_replayed"
	EventLogout           = "logout"
	EventSessionClosed    = "session_closed"
	EventSessionFault     = "session_fault"
	EventPrincipalRevoked = "principal_revoked"
	EventRegistered       = "registered"
)

// Event is one security event. The JSON field names are stable: the worker and
// the Loki label extractor parse them from Kafka messages.
type Event struct {
	ID          string            `json:"id"`
	EventType   string            `json:"eventType"`
	PrincipalID string            `json:"principalId,omitempty"`
	SessionID   string            `json:"sessionId,omitempty"`
	Source      string            `json:"source"`
	IP          string            `json:"ip,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
