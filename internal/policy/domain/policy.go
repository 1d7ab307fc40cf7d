package domain

import "time"

// Policy is a stored consent policy: a Rego module that overrides the
// compiled-in defaults. At most one policy is active at a time.
type Policy struct {
	ID        string
	Name      string
	Rego      string
	Active    bool
	CreatedAt time.Time
}
