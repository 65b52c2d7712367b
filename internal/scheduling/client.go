// Package scheduling is the HTTP client for the scheduling service's
// availability and booking endpoints.
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/homevisit-booking/internal/apierror"
	"github.com/wolfman30/homevisit-booking/internal/booking"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

const (
	defaultTimeout       = 20 * time.Second
	defaultVisitType     = "Service"
	defaultTimeoutPeriod = 500
	dateLayout           = "2006-01-02"

	availabilityPath = "/api/available-slots"
	bookingPath      = "/api/book-slot"
)

// ErrMissingClientID is returned before any network call when no client id
// is configured.
var ErrMissingClientID = errors.New("scheduling: client id not set")

// Config holds the scheduling service settings.
type Config struct {
	BaseURL              string
	ClientID             string
	VisitType            string
	BookingTimeoutPeriod int
	Timeout              time.Duration
}

// Client implements booking.SlotDirectory and booking.SlotBooker.
type Client struct {
	baseURL       string
	clientID      string
	visitType     string
	timeoutPeriod int
	httpClient    *http.Client
	logger        *logging.Logger
	metrics       *metrics.FlowMetrics
	tracer        trace.Tracer
}

var (
	_ booking.SlotDirectory = (*Client)(nil)
	_ booking.SlotBooker    = (*Client)(nil)
)

// NewClient creates a scheduling client.
func NewClient(cfg Config, logger *logging.Logger, m *metrics.FlowMetrics) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.VisitType == "" {
		cfg.VisitType = defaultVisitType
	}
	if cfg.BookingTimeoutPeriod <= 0 {
		cfg.BookingTimeoutPeriod = defaultTimeoutPeriod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		clientID:      strings.TrimSpace(cfg.ClientID),
		visitType:     cfg.VisitType,
		timeoutPeriod: cfg.BookingTimeoutPeriod,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
		metrics:       m,
		tracer:        otel.Tracer("homevisit.internal.scheduling"),
	}
}

type availabilityRequest struct {
	ClientID     string `json:"clientId"`
	ClientRef    string `json:"clientRef"`
	VisitType    string `json:"visitType"`
	Postcode     string `json:"postcode"`
	EarliestDate string `json:"earliestDate"`
	LatestDate   string `json:"latestDate"`
}

type availabilityResponse struct {
	Slots []booking.Slot `json:"slots"`
	Error string         `json:"error"`
}

type bookingRequest struct {
	ClientID             string `json:"clientId"`
	ClientReference      string `json:"clientReference"`
	VisitType            string `json:"visitType"`
	Postcode             string `json:"postcode"`
	VisitDate            string `json:"visitDate"`
	VisitWindowStart     string `json:"visitWindowStart"`
	VisitWindowEnd       string `json:"visitWindowEnd"`
	BookingTimeoutPeriod int    `json:"bookingTimeoutPeriod"`
}

type bookingResponse struct {
	Success   *bool  `json:"success"`
	Reference string `json:"reference"`
	Summary   string `json:"summary"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// FetchSlots lists the slots available for a postcode between two dates.
func (c *Client) FetchSlots(ctx context.Context, query booking.AvailabilityQuery) ([]booking.Slot, error) {
	ctx, span := c.tracer.Start(ctx, "scheduling.fetch_slots",
		trace.WithAttributes(attribute.String("scheduling.client_ref", query.ClientRef)))
	defer span.End()

	if c.clientID == "" {
		return nil, ErrMissingClientID
	}
	payload := availabilityRequest{
		ClientID:     c.clientID,
		ClientRef:    query.ClientRef,
		VisitType:    c.visitType,
		Postcode:     query.Postcode,
		EarliestDate: query.EarliestDate.Format(dateLayout),
		LatestDate:   query.LatestDate.Format(dateLayout),
	}

	status, body, err := c.do(ctx, "fetch_slots", availabilityPath, payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out availabilityResponse
	decodeErr := json.Unmarshal(body, &out)
	if status < 200 || status > 299 {
		err := &apierror.ServiceError{Op: "scheduling: fetch slots", Status: status, Message: out.Error}
		span.RecordError(err)
		return nil, err
	}
	if decodeErr != nil {
		err := &apierror.ServiceError{Op: "scheduling: fetch slots", Status: status, Message: "unreadable availability response"}
		span.RecordError(decodeErr)
		return nil, err
	}
	span.SetAttributes(attribute.Int("scheduling.slots", len(out.Slots)))
	return out.Slots, nil
}

// BookSlot reserves one slot. A non-2xx status or a payload with
// success=false is a ServiceError whose message is taken from the payload's
// message, then error, then the raw body.
func (c *Client) BookSlot(ctx context.Context, req booking.BookingRequest) (*booking.BookingConfirmation, error) {
	ctx, span := c.tracer.Start(ctx, "scheduling.book_slot",
		trace.WithAttributes(
			attribute.String("scheduling.client_ref", req.ClientRef),
			attribute.String("scheduling.visit_date", req.VisitDate),
		))
	defer span.End()

	if c.clientID == "" {
		return nil, ErrMissingClientID
	}
	payload := bookingRequest{
		ClientID:             c.clientID,
		ClientReference:      req.ClientRef,
		VisitType:            c.visitType,
		Postcode:             req.Postcode,
		VisitDate:            req.VisitDate,
		VisitWindowStart:     req.WindowStart,
		VisitWindowEnd:       req.WindowEnd,
		BookingTimeoutPeriod: c.timeoutPeriod,
	}

	status, body, err := c.do(ctx, "book_slot", bookingPath, payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out bookingResponse
	decodeErr := json.Unmarshal(body, &out)
	failed := status < 200 || status > 299 || decodeErr != nil || (out.Success != nil && !*out.Success)
	if failed {
		err := &apierror.ServiceError{
			Op:      "scheduling: book slot",
			Status:  status,
			Message: firstNonEmpty(out.Message, out.Error),
			Raw:     strings.TrimSpace(string(body)),
		}
		span.RecordError(err)
		c.logger.Warn("scheduling: booking rejected", "status", status, "code", out.Code, "client_ref", req.ClientRef)
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.reference", out.Reference))
	return &booking.BookingConfirmation{Reference: out.Reference, Summary: out.Summary}, nil
}

// do posts payload as JSON and returns the status and body. Only transport
// failures are returned as errors.
func (c *Client) do(ctx context.Context, op, path string, payload any) (int, []byte, error) {
	start := time.Now()
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("scheduling: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("scheduling: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(op, "network_error", time.Since(start).Seconds())
		return 0, nil, &apierror.NetworkError{Op: "scheduling: " + op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveUpstream(op, "network_error", time.Since(start).Seconds())
		return 0, nil, &apierror.NetworkError{Op: "scheduling: " + op, Err: err}
	}
	outcome := "ok"
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "service_error"
	}
	c.metrics.ObserveUpstream(op, outcome, time.Since(start).Seconds())
	return resp.StatusCode, respBody, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
