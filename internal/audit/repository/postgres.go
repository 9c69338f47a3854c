package repository

import (
	"context"
	"database/sql"

	"reservo/authcore/internal/audit/domain"
)

// PostgresRepository persists audit logs to PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, principal_id, action, resource, ip, metadata, created_at
		 FROM audit_logs WHERE id = $1`, id)
	var a domain.AuditLog
	err := row.Scan(&a.ID, &a.PrincipalID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByPrincipal returns audit logs for the given principal, newest first,
// paginated by limit and offset.
func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, principal_id, action, resource, ip, metadata, created_at
		 FROM audit_logs WHERE principal_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, principalID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.PrincipalID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, principal_id, action, resource, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.PrincipalID, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt)
	return err
}
