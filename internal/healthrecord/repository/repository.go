package repository

import (
	"context"

	"migrant-health-access/backend/internal/healthrecord/domain"
)

// Repository defines persistence for health records.
type Repository interface {
	Create(ctx context.Context, rec *domain.Record) error
	// ListByMigrant returns all records for the migrant's public unique id,
	// newest first.
	ListByMigrant(ctx context.Context, migrantID string) ([]*domain.Record, error)
}
