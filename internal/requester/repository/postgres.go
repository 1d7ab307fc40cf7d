package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"migrant-health-access/backend/internal/requester/domain"
)

type requesterRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	Role         string    `db:"role"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r requesterRow) toDomain() *domain.Requester {
	return &domain.Requester{
		ID: r.ID, Email: r.Email, Name: r.Name, Role: domain.Role(r.Role),
		PasswordHash: r.PasswordHash, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// PostgresRepository is a requester repository backed by Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a requester repository that uses the given db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the requester. The requester must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, req *domain.Requester) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO requesters (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.Email, req.Name, string(req.Role), req.PasswordHash, req.CreatedAt, req.UpdatedAt)
	return err
}

// GetByEmail returns the requester for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Requester, error) {
	return r.getOne(ctx, `SELECT id, email, name, role, password_hash, created_at, updated_at
		FROM requesters WHERE email = $1`, email)
}

// GetByID returns the requester for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Requester, error) {
	return r.getOne(ctx, `SELECT id, email, name, role, password_hash, created_at, updated_at
		FROM requesters WHERE id = $1`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.Requester, error) {
	var row requesterRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}
