package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"migrant-health-access/backend/internal/audit/domain"
)

type auditLogRow struct {
	ID          string    `db:"id"`
	RequesterID string    `db:"requester_id"`
	Action      string    `db:"action"`
	Resource    string    `db:"resource"`
	IP          string    `db:"ip"`
	Metadata    string    `db:"metadata"`
	CreatedAt   time.Time `db:"created_at"`
}

// PostgresRepository is an audit log repository backed by Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, requester_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.RequesterID, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt)
	return err
}

// ListByRequester returns audit logs for the given requester, newest first,
// paginated by limit and offset.
func (r *PostgresRepository) ListByRequester(ctx context.Context, requesterID string, limit, offset int32) ([]*domain.AuditLog, error) {
	var rows []auditLogRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, requester_id, action, resource, ip, metadata, created_at
		FROM audit_logs
		WHERE requester_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		requesterID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, len(rows))
	for i, row := range rows {
		out[i] = &domain.AuditLog{
			ID: row.ID, RequesterID: row.RequesterID, Action: row.Action,
			Resource: row.Resource, IP: row.IP, Metadata: row.Metadata, CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}
