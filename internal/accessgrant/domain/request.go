package domain

import "time"

// Status is the lifecycle state of an access grant request. Pending is the
// only non-terminal state; every transition leaves pending and none returns.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusExpired Status = "expired"
	StatusDenied  Status = "denied"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusGranted || s == StatusExpired || s == StatusDenied
}

// Request is one consent flow attempt between a requester and a migrant.
// The OTP itself is never stored; CodeHash holds its SHA-256 hash. VerifiedAt
// is set exactly when Status becomes granted, and Attempts counts mismatched
// verification attempts while pending.
type Request struct {
	ID            string
	MigrantID     string // public unique id of the data subject
	RequesterID   string
	CodeHash      string
	CodeExpiresAt time.Time
	Status        Status
	Attempts      int
	VerifiedAt    *time.Time
	CreatedAt     time.Time
}

// CodeExpired reports whether the OTP is expired at now. Expiry is inclusive:
// a verification arriving exactly at CodeExpiresAt is too late.
func (r *Request) CodeExpired(now time.Time) bool {
	return !now.Before(r.CodeExpiresAt)
}

// GrantValidAt reports whether a granted request still authorizes disclosure
// at now, given the grant validity window. A zero window means the grant
// never lapses.
func (r *Request) GrantValidAt(now time.Time, window time.Duration) bool {
	if r.Status != StatusGranted || r.VerifiedAt == nil {
		return false
	}
	if window <= 0 {
		return true
	}
	return now.Before(r.VerifiedAt.Add(window))
}
