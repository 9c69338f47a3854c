package repository

import (
	"context"
	"database/sql"
	"time"

	principal "reservo/authcore/internal/principal/domain"
	"reservo/authcore/internal/session/domain"
)

// Postgres implements session persistence backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Postgres session repository using the given database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const sessionColumns = `id, principal_id, principal_kind, current_token_hash, device_platform, device_user_agent, device_name, device_fingerprint, ip_address, created_at, last_seen_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var s domain.Session
	var kind string
	var lastSeen sql.NullTime
	err := row.Scan(
		&s.ID, &s.PrincipalID, &kind, &s.CurrentTokenHash,
		&s.Device.Platform, &s.Device.UserAgent, &s.Device.DisplayName, &s.Device.Fingerprint,
		&s.Device.IP, &s.CreatedAt, &lastSeen,
	)
	if err != nil {
		return nil, err
	}
	s.PrincipalKind = principal.Kind(kind)
	if lastSeen.Valid {
		t := lastSeen.Time
		s.LastSeenAt = &t
	}
	return &s, nil
}

// GetByID fetches a session by ID. Returns (nil, nil) when not found.
func (r *Postgres) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// Create inserts a new session.
func (r *Postgres) Create(ctx context.Context, s *domain.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, principal_id, principal_kind, current_token_hash, device_platform, device_user_agent, device_name, device_fingerprint, ip_address, created_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.PrincipalID, string(s.PrincipalKind), s.CurrentTokenHash,
		s.Device.Platform, s.Device.UserAgent, s.Device.DisplayName, s.Device.Fingerprint,
		s.Device.IP, s.CreatedAt, s.LastSeenAt,
	)
	return err
}

// Delete removes a session. Idempotent.
func (r *Postgres) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteByPrincipal removes every session belonging to the principal.
func (r *Postgres) DeleteByPrincipal(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE principal_id = $1`, principalID)
	return err
}

// ListByPrincipal returns the principal's sessions, most recently used first.
// Sessions never touched sort after touched ones, newest creation first.
func (r *Postgres) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE principal_id = $1
		 ORDER BY last_seen_at DESC NULLS LAST, created_at DESC`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// AdvanceLeaf moves the session's leaf pointer from prevHash to newHash with a
// compare-and-set, so a rotation observed out of order cannot clobber a newer
// leaf. Returns false when the stored leaf no longer matches prevHash or the
// session is gone.
func (r *Postgres) AdvanceLeaf(ctx context.Context, sessionID, prevHash, newHash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET current_token_hash = $3, last_seen_at = $4
		 WHERE id = $1 AND current_token_hash = $2`,
		sessionID, prevHash, newHash, at)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
