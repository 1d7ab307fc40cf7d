package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"migrant-health-access/backend/internal/healthrecord/domain"
)

type recordRow struct {
	ID         string    `db:"id"`
	MigrantID  string    `db:"migrant_id"`
	RecordType string    `db:"record_type"`
	Title      string    `db:"title"`
	Notes      string    `db:"notes"`
	CreatedBy  string    `db:"created_by"`
	CreatedAt  time.Time `db:"created_at"`
}

// PostgresRepository is a health record repository backed by Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a health record repository that uses the given db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the record. The record must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, rec *domain.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO health_records (id, migrant_id, record_type, title, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.MigrantID, rec.RecordType, rec.Title, rec.Notes, rec.CreatedBy, rec.CreatedAt)
	return err
}

// ListByMigrant returns all records for the migrant's public unique id, newest first.
func (r *PostgresRepository) ListByMigrant(ctx context.Context, migrantID string) ([]*domain.Record, error) {
	var rows []recordRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, migrant_id, record_type, title, notes, created_by, created_at
		FROM health_records
		WHERE migrant_id = $1
		ORDER BY created_at DESC`,
		migrantID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Record, len(rows))
	for i, row := range rows {
		out[i] = &domain.Record{
			ID: row.ID, MigrantID: row.MigrantID, RecordType: row.RecordType,
			Title: row.Title, Notes: row.Notes, CreatedBy: row.CreatedBy, CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}
