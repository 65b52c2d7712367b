package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/homevisit-booking/internal/payments"
)

// PaidRecorder writes a BookingPaidV1 event for every completed payment.
type PaidRecorder struct {
	store *OutboxStore
	now   func() time.Time
}

func NewPaidRecorder(store *OutboxStore) *PaidRecorder {
	return &PaidRecorder{store: store, now: time.Now}
}

func (r *PaidRecorder) NotifyPaid(ctx context.Context, receipt payments.Receipt) error {
	b := receipt.Booking
	_, err := r.store.Insert(ctx, TypeBookingPaidV1, BookingPaidV1{
		EventID:     uuid.NewString(),
		Reference:   b.Reference,
		Postcode:    b.Postcode,
		VisitDate:   b.VisitDate,
		VisitWindow: b.VisitWindow,
		IntentID:    receipt.IntentID,
		ProductName: receipt.ProductName,
		AmountMinor: receipt.UnitAmount,
		Currency:    receipt.Currency,
		OccurredAt:  r.now().UTC(),
	})
	return err
}
