package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"migrant-health-access/backend/internal/policy/domain"
)

type policyRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Rego      string    `db:"rego"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// PostgresRepository is a consent policy repository backed by Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a consent policy repository that uses the given db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetActive returns the active consent policy, or nil if none is configured.
func (r *PostgresRepository) GetActive(ctx context.Context) (*domain.Policy, error) {
	var row policyRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, rego, active, created_at FROM consent_policies WHERE active LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Policy{
		ID: row.ID, Name: row.Name, Rego: row.Rego,
		Active: row.Active, CreatedAt: row.CreatedAt,
	}, nil
}

// Create persists the policy. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consent_policies (id, name, rego, active, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Rego, p.Active, p.CreatedAt)
	return err
}
