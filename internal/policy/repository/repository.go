package repository

import (
	"context"

	"migrant-health-access/backend/internal/policy/domain"
)

// Repository defines persistence for consent policies.
type Repository interface {
	GetActive(ctx context.Context) (*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
}
