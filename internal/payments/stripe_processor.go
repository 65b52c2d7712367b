package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/homevisit-booking/internal/apierror"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

var stripeTracer = otel.Tracer("homevisit.internal.payments.stripe")

// StripeProcessor confirms payment intents client-side style: with the
// publishable key and the intent's client secret. It never sees a secret key.
type StripeProcessor struct {
	intents paymentintent.Client
	logger  *logging.Logger
	metrics *metrics.FlowMetrics
}

var _ Processor = (*StripeProcessor)(nil)

// NewStripeProcessor creates a processor against apiBaseURL, or Stripe's
// public API when apiBaseURL is empty.
func NewStripeProcessor(publishableKey, apiBaseURL string, timeout time.Duration, logger *logging.Logger, m *metrics.FlowMetrics) *StripeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if apiBaseURL != "" {
		cfg.URL = stripe.String(apiBaseURL)
	}
	return &StripeProcessor{
		intents: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: publishableKey,
		},
		logger:  logger,
		metrics: m,
	}
}

func (p *StripeProcessor) Confirm(ctx context.Context, clientSecret string, details PaymentDetails) (*Confirmation, error) {
	ctx, span := stripeTracer.Start(ctx, "payments.stripe.confirm")
	defer span.End()

	intentID, err := intentIDFromSecret(clientSecret)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("stripe.payment_intent", intentID))

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(details.PaymentMethod),
	}
	params.Context = ctx
	params.AddExtra("client_secret", clientSecret)

	start := time.Now()
	pi, err := p.intents.Confirm(intentID, params)
	if err != nil {
		span.RecordError(err)
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < 500 {
			p.metrics.ObserveUpstream("confirm_payment", "service_error", time.Since(start).Seconds())
			p.logger.Warn("payments: stripe rejected confirmation", "payment_intent", intentID, "code", string(stripeErr.Code), "type", string(stripeErr.Type))
			return nil, &ProcessorError{Code: string(stripeErr.Code), Param: stripeErr.Param, Message: stripeErr.Msg}
		}
		p.metrics.ObserveUpstream("confirm_payment", "network_error", time.Since(start).Seconds())
		return nil, &apierror.NetworkError{Op: "payments: confirm payment", Err: err}
	}
	p.metrics.ObserveUpstream("confirm_payment", "ok", time.Since(start).Seconds())
	span.SetAttributes(attribute.String("stripe.status", string(pi.Status)))
	return &Confirmation{IntentID: pi.ID, Status: string(pi.Status)}, nil
}
