package booking

import "errors"

var (
	// ErrInFlight is returned while an availability or booking call is pending.
	ErrInFlight = errors.New("booking: request already in flight")
	// ErrInvalidPhase is returned when an action is not allowed in the current phase.
	ErrInvalidPhase = errors.New("booking: action not allowed in current phase")
	// ErrIncompleteSelection is returned when submitting without a date and time.
	ErrIncompleteSelection = errors.New("booking: date and time must be selected")
	// ErrUnknownOption is returned when selecting a date or time that was not offered.
	ErrUnknownOption = errors.New("booking: option not offered")
)

// User-facing messages for outcomes that are not upstream failures.
const (
	NoSlotsMessage     = "No available slots found. Please check your postcode and try again."
	HandoffSaveMessage = "We couldn't save your booking. Please try again."
	MissingRefMessage  = "The booking service did not return a reference."
)
