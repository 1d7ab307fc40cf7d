package repository

import (
	"context"

	"migrant-health-access/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByRequester(ctx context.Context, requesterID string, limit, offset int32) ([]*domain.AuditLog, error)
}
