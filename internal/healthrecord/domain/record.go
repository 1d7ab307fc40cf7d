package domain

import (
	"errors"
	"time"
)

// Record is a single health record entry for a migrant, keyed by the
// migrant's public unique id.
type Record struct {
	ID         string
	MigrantID  string
	RecordType string
	Title      string
	Notes      string
	CreatedBy  string
	CreatedAt  time.Time
}

// Validate checks the record has the fields required for persistence.
func (r *Record) Validate() error {
	if r.MigrantID == "" {
		return errors.New("migrant id is required")
	}
	if r.Title == "" {
		return errors.New("title is required")
	}
	return nil
}
