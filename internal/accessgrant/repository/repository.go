package repository

import (
	"context"
	"time"

	"migrant-health-access/backend/internal/accessgrant/domain"
)

// Repository defines persistence for access grant requests.
//
// TransitionFromPending and IncrementAttempts are conditional on the row still
// being pending, so concurrent verifications of the same request race safely:
// at most one caller observes swapped == true for a terminal transition.
type Repository interface {
	Create(ctx context.Context, r *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	// TransitionFromPending moves the request from pending to the given terminal
	// status in one atomic step. verifiedAt must be non-nil exactly when to is
	// granted. Returns swapped == false when the request was no longer pending.
	TransitionFromPending(ctx context.Context, id string, to domain.Status, verifiedAt *time.Time) (swapped bool, err error)
	// IncrementAttempts bumps the mismatch counter while the request is pending
	// and returns the new count. Returns swapped == false when not pending.
	IncrementAttempts(ctx context.Context, id string) (attempts int, swapped bool, err error)
	// LatestGranted returns the granted request for the pair with the most
	// recent verified_at, or nil if none exists.
	LatestGranted(ctx context.Context, migrantID, requesterID string) (*domain.Request, error)
	// CountPending returns the number of currently pending requests for the pair.
	CountPending(ctx context.Context, migrantID, requesterID string) (int, error)
}
