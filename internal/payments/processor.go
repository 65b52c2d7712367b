package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// StatusSucceeded is the processor status that marks a completed payment.
const StatusSucceeded = "succeeded"

// ErrMalformedSecret is returned for a confirmation secret that does not
// name a payment intent.
var ErrMalformedSecret = errors.New("payments: malformed client secret")

// PaymentDetails is what the embedded card widget hands back: a payment
// method handle, never raw card data.
type PaymentDetails struct {
	PaymentMethod string
	BillingName   string
	BillingEmail  string
}

// Confirmation is the processor's answer to a confirm call.
type Confirmation struct {
	IntentID string
	Status   string
}

// Processor confirms a payment intent with the external card processor.
type Processor interface {
	Confirm(ctx context.Context, clientSecret string, details PaymentDetails) (*Confirmation, error)
}

// ProcessorError is a rejection reported by the processor, e.g. a declined
// card. Message is shown to the customer verbatim.
type ProcessorError struct {
	Code    string
	Param   string
	Message string
}

func (e *ProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments: processor rejected payment (%s): %s", e.Code, e.Message)
	}
	return "payments: processor rejected payment: " + e.Message
}

// intentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func intentIDFromSecret(secret string) (string, error) {
	id, _, ok := strings.Cut(secret, "_secret_")
	if !ok || id == "" {
		return "", ErrMalformedSecret
	}
	return id, nil
}
