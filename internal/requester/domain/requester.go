package domain

import (
	"errors"
	"time"
)

// Role is the function of a requester account. The consent policy decides per
// role whether access flows may be started.
type Role string

const (
	RoleClinician Role = "clinician"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClinician || r == RoleAdmin
}

// Requester is an authenticated account that can start consent flows and read
// granted health records.
type Requester struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the requester has the fields required for persistence.
func (r *Requester) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Email == "" {
		return errors.New("email is required")
	}
	if !r.Role.Valid() {
		return errors.New("unknown role")
	}
	return nil
}
