package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"reservo/authcore/internal/audit/domain"
)

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
	err     error
}

func (r *memAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (r *memAuditRepo) ListByPrincipal(ctx context.Context, principalID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (r *memAuditRepo) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, a)
	return nil
}

func TestLogEvent(t *testing.T) {
	repo := &memAuditRepo{}
	l := NewLogger(repo, func(context.Context) string { return "10.0.0.1" })

	l.LogEvent(context.Background(), "p-1", "login", "session/sess-1", `{"platform":"ios"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.PrincipalID != "p-1" || e.Action != "login" || e.Resource != "session/sess-1" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.IP != "10.0.0.1" {
		t.Errorf("ip = %q, want 10.0.0.1", e.IP)
	}
	if e.CreatedAt.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestLogEvent_NilIPExtractor(t *testing.T) {
	repo := &memAuditRepo{}
	l := NewLogger(repo, nil)

	l.LogEvent(context.Background(), "p-1", "logout", "session/sess-1", "")
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogEvent_BestEffort(t *testing.T) {
	repo := &memAuditRepo{err: errors.New("db down")}
	l := NewLogger(repo, nil)

	// Must not panic or propagate the repository error.
	l.LogEvent(context.Background(), "p-1", "login", "session/sess-1", "")
}

func TestLogEvent_NilRepo(t *testing.T) {
	l := NewLogger(nil, nil)
	l.LogEvent(context.Background(), "p-1", "login", "session/sess-1", "")

	var nilLogger *Logger
	nilLogger.LogEvent(context.Background(), "p-1", "login", "session/sess-1", "")
}
