package repository

import (
	"context"
	"database/sql"
	"time"

	"reservo/authcore/internal/ledger/domain"
	principal "reservo/authcore/internal/principal/domain"
)

// Postgres implements refresh token ledger persistence backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Postgres ledger repository using the given database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const tokenColumns = `token_hash, session_id, principal_id, principal_kind, device_fingerprint, issued_at, expires_at, revoked, replaced_by, last_used_at`

func scanToken(row interface{ Scan(...any) error }) (*domain.RefreshTokenRecord, error) {
	var rec domain.RefreshTokenRecord
	var kind string
	var lastUsed sql.NullTime
	err := row.Scan(
		&rec.TokenHash, &rec.SessionID, &rec.PrincipalID, &kind, &rec.DeviceFingerprint,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked, &rec.ReplacedBy, &lastUsed,
	)
	if err != nil {
		return nil, err
	}
	rec.PrincipalKind = principal.Kind(kind)
	if lastUsed.Valid {
		t := lastUsed.Time
		rec.LastUsedAt = &t
	}
	return &rec, nil
}

// GetByHash fetches a token record by hash. Returns (nil, nil) when not found.
func (r *Postgres) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshTokenRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	rec, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// Create inserts a new token record.
func (r *Postgres) Create(ctx context.Context, rec *domain.RefreshTokenRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, session_id, principal_id, principal_kind, device_fingerprint, issued_at, expires_at, revoked, replaced_by, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.TokenHash, rec.SessionID, rec.PrincipalID, string(rec.PrincipalKind),
		rec.DeviceFingerprint, rec.IssuedAt, rec.ExpiresAt, rec.Revoked, rec.ReplacedBy, rec.LastUsedAt,
	)
	return err
}

// ConsumeAndCreate atomically consumes the token identified by oldHash and
// inserts its successor in one transaction. The consume is a conditional update
// that only matches a live, unexpired record, so under concurrent rotation of
// the same token exactly one caller wins. Returns false when the token was
// already consumed, revoked, expired, or absent.
func (r *Postgres) ConsumeAndCreate(ctx context.Context, oldHash string, successor *domain.RefreshTokenRecord, now time.Time) (bool, error) {
	if err := successor.Validate(); err != nil {
		return false, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked = TRUE, replaced_by = $2, last_used_at = $3
		 WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $3`,
		oldHash, successor.TokenHash, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, session_id, principal_id, principal_kind, device_fingerprint, issued_at, expires_at, revoked, replaced_by, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		successor.TokenHash, successor.SessionID, successor.PrincipalID, string(successor.PrincipalKind),
		successor.DeviceFingerprint, successor.IssuedAt, successor.ExpiresAt, successor.Revoked, successor.ReplacedBy, successor.LastUsedAt,
	)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Revoke marks a single token record revoked. Idempotent.
func (r *Postgres) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, tokenHash)
	return err
}

// RevokeAllBySession marks every record in a session's chain revoked.
func (r *Postgres) RevokeAllBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE session_id = $1`, sessionID)
	return err
}

// RevokeAllByPrincipal marks every record across all of a principal's sessions revoked.
func (r *Postgres) RevokeAllByPrincipal(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE principal_id = $1`, principalID)
	return err
}

// DeleteExpiredBefore removes records whose expiry predates cutoff. Returns the
// number of rows removed.
func (r *Postgres) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
