package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/homevisit-booking/internal/apierror"
	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

var intentTracer = otel.Tracer("homevisit.internal.payments.intent")

const createIntentPath = "/api/create-payment-intent"

// IntentInfo describes a payment intent created for one booking.
// UnitAmount is in minor currency units.
type IntentInfo struct {
	ClientSecret string `json:"clientSecret"`
	ProductName  string `json:"productName"`
	UnitAmount   int64  `json:"unitAmount"`
	Currency     string `json:"currency"`
}

// IntentCreator creates a payment intent for a booking.
type IntentCreator interface {
	CreateIntent(ctx context.Context, record handoff.BookingRecord) (*IntentInfo, error)
}

// IntentClient calls the payment backend's intent endpoint. It never retries.
type IntentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.FlowMetrics
}

var _ IntentCreator = (*IntentClient)(nil)

func NewIntentClient(baseURL string, timeout time.Duration, logger *logging.Logger, m *metrics.FlowMetrics) *IntentClient {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &IntentClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    m,
	}
}

type intentContact struct {
	FirstName string `json:"firstName"`
	Surname   string `json:"surname"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Postcode  string `json:"postcode"`
}

type intentRequest struct {
	Reference    string        `json:"reference"`
	Form         intentContact `json:"form"`
	SelectedDate string        `json:"selectedDate"`
	SelectedTime string        `json:"selectedTime"`
}

type intentResponse struct {
	IntentInfo
	Error string `json:"error"`
}

func (c *IntentClient) CreateIntent(ctx context.Context, record handoff.BookingRecord) (*IntentInfo, error) {
	ctx, span := intentTracer.Start(ctx, "payments.create_intent")
	defer span.End()
	span.SetAttributes(attribute.String("booking.reference", record.Reference))

	body, err := json.Marshal(intentRequest{
		Reference: record.Reference,
		Form: intentContact{
			FirstName: record.FirstName,
			Surname:   record.Surname,
			Phone:     record.Phone,
			Email:     record.Email,
			Address:   record.Address,
			Postcode:  record.Postcode,
		},
		SelectedDate: record.VisitDate,
		SelectedTime: record.VisitWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: marshal intent request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createIntentPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payments: create intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		c.metrics.ObserveUpstream("create_intent", "network_error", time.Since(start).Seconds())
		return nil, &apierror.NetworkError{Op: "payments: create intent", Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		c.metrics.ObserveUpstream("create_intent", "network_error", time.Since(start).Seconds())
		return nil, &apierror.NetworkError{Op: "payments: create intent", Err: err}
	}

	var out intentResponse
	decodeErr := json.Unmarshal(respBody, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 || decodeErr != nil || out.Error != "" || out.ClientSecret == "" {
		c.metrics.ObserveUpstream("create_intent", "service_error", time.Since(start).Seconds())
		svcErr := &apierror.ServiceError{
			Op:      "payments: create intent",
			Status:  resp.StatusCode,
			Message: out.Error,
		}
		if svcErr.Message == "" && decodeErr == nil && resp.StatusCode < 300 {
			svcErr.Message = "payment backend returned no client secret"
		}
		span.RecordError(svcErr)
		c.logger.Warn("payments: intent creation failed", "status", resp.StatusCode, "reference", record.Reference)
		return nil, svcErr
	}
	c.metrics.ObserveUpstream("create_intent", "ok", time.Since(start).Seconds())
	info := out.IntentInfo
	return &info, nil
}
