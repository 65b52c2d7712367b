package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

const (
	defaultFromName = "Home Visit Booking"
	// confirmationCategory tags outgoing mail for provider-side reporting.
	confirmationCategory = "booking-confirmation"
)

var tracer = otel.Tracer("homevisit.internal.notify")

// EmailSender sends one message. Implementations log the booking reference,
// never the recipient address.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To        string
	ToName    string
	ReplyTo   string
	Subject   string
	Body      string // plain text
	HTML      string // optional
	Reference string // booking reference, attached as provider metadata
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	replyTo   string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	ReplyTo   string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		replyTo:   cfg.ReplyTo,
		logger:    logger,
	}
}

// buildMessage assembles the SendGrid v3 payload.
func (s *SendGridSender) buildMessage(msg EmailMessage) *mail.SGMailV3 {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	htmlContent := msg.HTML
	if htmlContent == "" {
		htmlContent = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, htmlContent)
	message.AddCategories(confirmationCategory)

	replyTo := msg.ReplyTo
	if replyTo == "" {
		replyTo = s.replyTo
	}
	if replyTo != "" {
		message.SetReplyTo(mail.NewEmail(s.fromName, replyTo))
	}
	if msg.Reference != "" && len(message.Personalizations) > 0 {
		message.Personalizations[0].SetCustomArg("booking_reference", msg.Reference)
	}
	return message
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	ctx, span := tracer.Start(ctx, "notify.sendgrid.send")
	defer span.End()
	span.SetAttributes(attribute.String("booking.reference", msg.Reference))

	response, err := s.client.SendWithContext(ctx, s.buildMessage(msg))
	if err != nil {
		span.RecordError(err)
		s.logger.Error("sendgrid send failed", "error", err, "reference", msg.Reference)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", response.StatusCode))

	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "reference", msg.Reference)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "reference", msg.Reference, "status", response.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending. It is the default provider.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "reference", msg.Reference, "subject", msg.Subject)
	return nil
}
