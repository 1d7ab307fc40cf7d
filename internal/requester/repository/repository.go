package repository

import (
	"context"

	"migrant-health-access/backend/internal/requester/domain"
)

// Repository defines persistence for requester accounts.
type Repository interface {
	Create(ctx context.Context, r *domain.Requester) error
	// GetByEmail returns the requester for email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.Requester, error)
	// GetByID returns the requester for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Requester, error)
}
