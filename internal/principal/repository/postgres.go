package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"reservo/authcore/internal/principal/domain"
)

// Postgres implements principal persistence backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Postgres principal repository using the given database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const principalColumns = `id, email, name, kind, role, permissions, secret_hash, active, verified, failed_attempts, lock_until, created_at, updated_at`

func scanPrincipal(row interface{ Scan(...any) error }) (*domain.Principal, error) {
	var p domain.Principal
	var kind string
	var permissions string
	var lockUntil sql.NullTime
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &kind, &p.Role, &permissions, &p.SecretHash,
		&p.Active, &p.Verified, &p.FailedAttempts, &lockUntil, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Kind = domain.Kind(kind)
	if lockUntil.Valid {
		t := lockUntil.Time
		p.LockUntil = &t
	}
	if permissions != "" {
		if err := json.Unmarshal([]byte(permissions), &p.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &p, nil
}

// GetByID fetches a principal by ID. Returns (nil, nil) when not found.
func (r *Postgres) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// GetByEmail fetches a principal by email. Returns (nil, nil) when not found.
func (r *Postgres) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, email)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// Create inserts a new principal.
func (r *Postgres) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	permissions, err := json.Marshal(p.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO principals (id, email, name, kind, role, permissions, secret_hash, active, verified, failed_attempts, lock_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.Email, p.Name, string(p.Kind), p.Role, string(permissions), p.SecretHash,
		p.Active, p.Verified, p.FailedAttempts, p.LockUntil, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// Deactivate marks a principal inactive. Existing sessions are revoked by the caller.
func (r *Postgres) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE principals SET active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	return err
}

// RecordFailure registers one failed credential attempt in a single statement so
// concurrent failures cannot lose counts. An expired lock resets the counter to 1
// before the new failure is applied. When the counter reaches threshold the row is
// locked until now+lockFor. Returns the resulting attempt count and lock expiry.
func (r *Postgres) RecordFailure(ctx context.Context, id string, now time.Time, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	lockUntil := now.Add(lockFor)
	row := r.db.QueryRowContext(ctx,
		`UPDATE principals SET
			failed_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN 1
				ELSE failed_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN NULL
				WHEN lock_until IS NULL AND failed_attempts + 1 >= $3 THEN $4
				ELSE lock_until
			END,
			updated_at = $2
		 WHERE id = $1
		 RETURNING failed_attempts, lock_until`,
		id, now, threshold, lockUntil)

	var attempts int
	var lock sql.NullTime
	if err := row.Scan(&attempts, &lock); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	if lock.Valid {
		t := lock.Time
		return attempts, &t, nil
	}
	return attempts, nil, nil
}

// ResetLockout clears the failure counter and any lock after a successful sign-in.
func (r *Postgres) ResetLockout(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE principals SET failed_attempts = 0, lock_until = NULL, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	return err
}
