package engine

import "context"

// ConsentResult holds the result of consent policy evaluation for one
// requester. The access grant manager enforces these values.
type ConsentResult struct {
	// AllowRequest is whether the requester's role may initiate consent flows
	// and read granted records at all.
	AllowRequest bool
	// MaxVerifyAttempts is the mismatch count at which a pending request is denied.
	MaxVerifyAttempts int
	// MaxPendingPerPair caps concurrently pending requests per (migrant, requester) pair.
	MaxPendingPerPair int
	// GrantValidMinutes is the validity window of a granted request, measured
	// from verification. Zero or negative means the grant never lapses.
	GrantValidMinutes int
}

// Evaluator evaluates consent policies using OPA or other engines.
type Evaluator interface {
	// EvaluateConsent evaluates the consent policy for a requester role.
	EvaluateConsent(ctx context.Context, requesterRole string) (ConsentResult, error)
}
