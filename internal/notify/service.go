package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/homevisit-booking/internal/payments"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// BookingConfirmations emails the customer once their visit is paid for.
type BookingConfirmations struct {
	email  EmailSender
	logger *logging.Logger
}

var _ payments.PaidNotifier = (*BookingConfirmations)(nil)

// NewBookingConfirmations creates the notifier. A nil sender disables email.
func NewBookingConfirmations(email EmailSender, logger *logging.Logger) *BookingConfirmations {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingConfirmations{email: email, logger: logger}
}

// NotifyPaid sends the confirmation email for receipt.
func (s *BookingConfirmations) NotifyPaid(ctx context.Context, receipt payments.Receipt) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping confirmation")
		return nil
	}
	to := strings.TrimSpace(receipt.Booking.Email)
	if to == "" {
		s.logger.Warn("notify: booking has no email address", "reference", receipt.Booking.Reference)
		return nil
	}
	msg := buildConfirmationEmail(receipt)
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send booking confirmation: %w", err)
	}
	s.logger.Info("notify: booking confirmation sent", "reference", receipt.Booking.Reference)
	return nil
}

func buildConfirmationEmail(r payments.Receipt) EmailMessage {
	b := r.Booking
	name := strings.TrimSpace(b.FirstName + " " + b.Surname)
	price := payments.FormatAmount(r.UnitAmount, r.Currency)
	product := r.ProductName
	if product == "" {
		product = "Home visit"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", b.FirstName)
	fmt.Fprintf(&body, "Thank you for your payment. Your visit is confirmed.\n\n")
	fmt.Fprintf(&body, "Booking reference: %s\n", b.Reference)
	fmt.Fprintf(&body, "Service: %s\n", product)
	fmt.Fprintf(&body, "Date: %s\n", b.VisitDate)
	fmt.Fprintf(&body, "Arrival window: %s\n", b.VisitWindow)
	fmt.Fprintf(&body, "Address: %s, %s\n", b.Address, b.Postcode)
	fmt.Fprintf(&body, "Amount paid: %s\n", price)
	if b.Summary != "" {
		fmt.Fprintf(&body, "\n%s\n", b.Summary)
	}

	htmlBody := fmt.Sprintf(`<h2>Your visit is confirmed</h2>
<p>Hi %s, thank you for your payment.</p>
<table>
<tr><td><strong>Booking reference</strong></td><td>%s</td></tr>
<tr><td><strong>Service</strong></td><td>%s</td></tr>
<tr><td><strong>Date</strong></td><td>%s</td></tr>
<tr><td><strong>Arrival window</strong></td><td>%s</td></tr>
<tr><td><strong>Address</strong></td><td>%s, %s</td></tr>
<tr><td><strong>Amount paid</strong></td><td>%s</td></tr>
</table>`,
		html.EscapeString(b.FirstName), html.EscapeString(b.Reference), html.EscapeString(product),
		html.EscapeString(b.VisitDate), html.EscapeString(b.VisitWindow),
		html.EscapeString(b.Address), html.EscapeString(b.Postcode), html.EscapeString(price))

	return EmailMessage{
		To:        b.Email,
		ToName:    name,
		Subject:   fmt.Sprintf("Booking confirmed: %s on %s", b.Reference, b.VisitDate),
		Body:      body.String(),
		HTML:      htmlBody,
		Reference: b.Reference,
	}
}
