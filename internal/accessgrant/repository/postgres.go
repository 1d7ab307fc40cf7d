package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"migrant-health-access/backend/internal/accessgrant/domain"
)

type requestRow struct {
	ID            string       `db:"id"`
	MigrantID     string       `db:"migrant_id"`
	RequesterID   string       `db:"requester_id"`
	CodeHash      string       `db:"code_hash"`
	CodeExpiresAt time.Time    `db:"code_expires_at"`
	Status        string       `db:"status"`
	Attempts      int          `db:"attempts"`
	VerifiedAt    sql.NullTime `db:"verified_at"`
	CreatedAt     time.Time    `db:"created_at"`
}

func (row *requestRow) toDomain() *domain.Request {
	r := &domain.Request{
		ID:            row.ID,
		MigrantID:     row.MigrantID,
		RequesterID:   row.RequesterID,
		CodeHash:      row.CodeHash,
		CodeExpiresAt: row.CodeExpiresAt,
		Status:        domain.Status(row.Status),
		Attempts:      row.Attempts,
		CreatedAt:     row.CreatedAt,
	}
	if row.VerifiedAt.Valid {
		t := row.VerifiedAt.Time
		r.VerifiedAt = &t
	}
	return r
}

// PostgresRepository is an access grant request repository backed by Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an access grant request repository that uses the given db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the request. The request must have ID set and status pending.
func (r *PostgresRepository) Create(ctx context.Context, req *domain.Request) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_grant_requests
			(id, migrant_id, requester_id, code_hash, code_expires_at, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.MigrantID, req.RequesterID, req.CodeHash,
		req.CodeExpiresAt, string(req.Status), req.Attempts, req.CreatedAt)
	return err
}

// GetByID returns the request for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	var row requestRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, migrant_id, requester_id, code_hash, code_expires_at,
		       status, attempts, verified_at, created_at
		FROM access_grant_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// TransitionFromPending moves the request out of pending in one conditional
// UPDATE. The WHERE status = 'pending' clause is the per-request
// compare-and-swap: of two concurrent callers, only one changes a row.
func (r *PostgresRepository) TransitionFromPending(ctx context.Context, id string, to domain.Status, verifiedAt *time.Time) (bool, error) {
	var at sql.NullTime
	if verifiedAt != nil {
		at = sql.NullTime{Time: *verifiedAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE access_grant_requests
		SET status = $2, verified_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, string(to), at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementAttempts bumps the mismatch counter while still pending and returns
// the new value.
func (r *PostgresRepository) IncrementAttempts(ctx context.Context, id string) (int, bool, error) {
	var attempts int
	err := r.db.GetContext(ctx, &attempts, `
		UPDATE access_grant_requests
		SET attempts = attempts + 1
		WHERE id = $1 AND status = 'pending'
		RETURNING attempts`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return attempts, true, nil
}

// LatestGranted returns the most recently verified granted request for the
// (migrant, requester) pair, or nil if none exists.
func (r *PostgresRepository) LatestGranted(ctx context.Context, migrantID, requesterID string) (*domain.Request, error) {
	var row requestRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, migrant_id, requester_id, code_hash, code_expires_at,
		       status, attempts, verified_at, created_at
		FROM access_grant_requests
		WHERE migrant_id = $1 AND requester_id = $2 AND status = 'granted'
		ORDER BY verified_at DESC
		LIMIT 1`, migrantID, requesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// CountPending returns the number of currently pending requests for the pair.
func (r *PostgresRepository) CountPending(ctx context.Context, migrantID, requesterID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM access_grant_requests
		WHERE migrant_id = $1 AND requester_id = $2 AND status = 'pending'`,
		migrantID, requesterID)
	return n, err
}
