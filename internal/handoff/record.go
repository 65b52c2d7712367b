// Package handoff carries a confirmed booking from the booking page to the
// payment page of the same browser session.
package handoff

import (
	"context"
	"errors"
)

// BookingRecord is written once when a booking succeeds and read by the
// payment step.
type BookingRecord struct {
	Reference   string `json:"reference"`
	FirstName   string `json:"firstName"`
	Surname     string `json:"surname"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	Postcode    string `json:"postcode"`
	VisitDate   string `json:"visitDate"`
	VisitWindow string `json:"visitWindow"`
	Summary     string `json:"summary,omitempty"`
}

// ErrEmptyReference is returned when putting a record without a reference.
var ErrEmptyReference = errors.New("handoff: booking record has no reference")

// Store is a single-slot carrier for one session's BookingRecord.
// Put overwrites; Get reports ok=false when nothing was stored.
type Store interface {
	Put(ctx context.Context, record BookingRecord) error
	Get(ctx context.Context) (BookingRecord, bool, error)
}

// Sessions hands out the Store scoped to one browser session.
type Sessions interface {
	For(sessionID string) Store
}

// Forgetter is implemented by Sessions backends that hold records in process
// and must be told when a session ends. Expiring backends do not need it.
type Forgetter interface {
	Forget(sessionID string)
}
