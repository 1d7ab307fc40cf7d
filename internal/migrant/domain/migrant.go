package domain

import (
	"errors"
	"time"
)

// Migrant is the data subject whose health records are gated by consent.
// UniqueID is the public identifier (printed on the migrant's QR card);
// Phone receives the consent OTP.
type Migrant struct {
	ID          string
	UniqueID    string
	Name        string
	Phone       string
	DateOfBirth string
	CreatedAt   time.Time
}

// Validate validates the migrant for persistence.
func (m *Migrant) Validate() error {
	if m.UniqueID == "" {
		return errors.New("unique id is required")
	}
	if m.Phone == "" {
		return errors.New("phone is required")
	}
	return nil
}
