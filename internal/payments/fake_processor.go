package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// Test payment method handles understood by FakeProcessor.
const (
	FakeCardSucceeds   = "pm_card_visa"
	FakeCardDeclined   = "pm_card_chargeDeclined"
	FakeCardProcessing = "pm_card_processing"
)

// FakeProcessor is a dev/demo processor that confirms payments without
// talking to Stripe.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and should never
// be enabled in production.
type FakeProcessor struct {
	logger *logging.Logger
}

var _ Processor = (*FakeProcessor)(nil)

func NewFakeProcessor(logger *logging.Logger) *FakeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeProcessor{logger: logger}
}

func (p *FakeProcessor) Confirm(ctx context.Context, clientSecret string, details PaymentDetails) (*Confirmation, error) {
	_ = ctx
	intentID, err := intentIDFromSecret(clientSecret)
	if err != nil {
		// the dev payment backend may hand out opaque secrets
		intentID = "fake_pi_" + uuid.NewString()
	}
	p.logger.Info("payments: fake confirmation", "payment_intent", intentID, "payment_method", details.PaymentMethod)

	switch strings.TrimSpace(details.PaymentMethod) {
	case FakeCardSucceeds:
		return &Confirmation{IntentID: intentID, Status: StatusSucceeded}, nil
	case FakeCardProcessing:
		return &Confirmation{IntentID: intentID, Status: "processing"}, nil
	case FakeCardDeclined:
		return nil, &ProcessorError{Code: "card_declined", Message: "Your card was declined."}
	default:
		return nil, &ProcessorError{
			Code:    "resource_missing",
			Param:   "payment_method",
			Message: "Unknown test payment method. Use " + FakeCardSucceeds + ".",
		}
	}
}
