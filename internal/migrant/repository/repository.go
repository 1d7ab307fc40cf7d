package repository

import (
	"context"

	"migrant-health-access/backend/internal/migrant/domain"
)

// Repository defines persistence for migrants. GetByUniqueID is the subject
// lookup consumed by the access grant manager: nil result means the unique id
// does not resolve to a known data subject.
type Repository interface {
	Create(ctx context.Context, m *domain.Migrant) error
	GetByUniqueID(ctx context.Context, uniqueID string) (*domain.Migrant, error)
}
