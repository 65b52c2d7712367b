package events

import "time"

// Event types written to the outbox.
const (
	TypeBookingPaidV1 = "booking.paid.v1"
)

// BookingPaidV1 is emitted once a booked visit has been paid for.
type BookingPaidV1 struct {
	EventID     string    `json:"event_id"`
	Reference   string    `json:"reference"`
	Postcode    string    `json:"postcode"`
	VisitDate   string    `json:"visit_date"`
	VisitWindow string    `json:"visit_window"`
	IntentID    string    `json:"intent_id"`
	ProductName string    `json:"product_name"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}
