package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"migrant-health-access/backend/internal/migrant/domain"
)

type migrantRow struct {
	ID          string    `db:"id"`
	UniqueID    string    `db:"unique_id"`
	Name        string    `db:"name"`
	Phone       string    `db:"phone"`
	DateOfBirth string    `db:"date_of_birth"`
	CreatedAt   time.Time `db:"created_at"`
}

// PostgresRepository is a migrant repository backed by Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a migrant repository that uses the given db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the migrant. The migrant must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Migrant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO migrants (id, unique_id, name, phone, date_of_birth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UniqueID, m.Name, m.Phone, m.DateOfBirth, m.CreatedAt)
	return err
}

// GetByUniqueID returns the migrant for the public unique id, or nil if not found.
func (r *PostgresRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*domain.Migrant, error) {
	var row migrantRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, unique_id, name, phone, date_of_birth, created_at FROM migrants WHERE unique_id = $1`,
		uniqueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Migrant{
		ID: row.ID, UniqueID: row.UniqueID, Name: row.Name,
		Phone: row.Phone, DateOfBirth: row.DateOfBirth, CreatedAt: row.CreatedAt,
	}, nil
}
