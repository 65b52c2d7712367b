package payments

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/wolfman30/homevisit-booking/internal/apierror"
	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// Phase is the payment step's UI phase.
type Phase int

const (
	PhaseAwaitingBookingRecord Phase = iota
	PhaseMissingBookingRecord
	PhaseCreatingIntent
	PhaseAwaitingUserConfirmation
	PhaseConfirming
	PhaseConfirmError
	PhasePaid
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingBookingRecord:
		return "awaiting_booking_record"
	case PhaseMissingBookingRecord:
		return "missing_booking_record"
	case PhaseCreatingIntent:
		return "creating_intent"
	case PhaseAwaitingUserConfirmation:
		return "awaiting_user_confirmation"
	case PhaseConfirming:
		return "confirming"
	case PhaseConfirmError:
		return "confirm_error"
	case PhasePaid:
		return "paid"
	default:
		return "unknown"
	}
}

var (
	ErrInFlight             = errors.New("payments: request already in flight")
	ErrInvalidPhase         = errors.New("payments: action not allowed in current phase")
	ErrMissingPaymentMethod = errors.New("payments: payment method required")
)

// Messages shown on the payment page.
const (
	MissingBookingMessage       = "Missing booking data. Please start your booking again."
	ProcessingIncompleteMessage = "Your payment is still processing. Please try again in a moment."
	MissingCardDetailsMessage   = "Please enter your card details."
)

// maxDetailsMessage caps widget error text echoed back to the page.
const maxDetailsMessage = 200

// HandoffReader reads the record left by the booking step.
type HandoffReader interface {
	Get(ctx context.Context) (handoff.BookingRecord, bool, error)
}

// Receipt describes a completed payment.
type Receipt struct {
	Booking     handoff.BookingRecord
	IntentID    string
	ProductName string
	UnitAmount  int64
	Currency    string
}

// PaidNotifier is told about each completed payment. Failures are logged only.
type PaidNotifier interface {
	NotifyPaid(ctx context.Context, receipt Receipt) error
}

// PaidNotifiers fans a payment out to every notifier and joins their errors.
type PaidNotifiers []PaidNotifier

func (n PaidNotifiers) NotifyPaid(ctx context.Context, receipt Receipt) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyPaid(ctx, receipt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FlowOptions wires a Flow. Intents, Processor and Records are required.
type FlowOptions struct {
	Intents   IntentCreator
	Processor Processor
	Records   HandoffReader
	Notifier  PaidNotifier
	Attempts  AttemptGuard
	Logger    *logging.Logger
	Metrics   *metrics.FlowMetrics
}

// State is a copy of the flow's state for rendering. It never carries the
// confirmation secret.
type State struct {
	Phase        Phase
	Booking      *handoff.BookingRecord
	ProductName  string
	UnitAmount   int64
	Currency     string
	DisplayPrice string
	Message      string
	ErrorParam   string
	IntentID     string
	InFlight     bool
}

// Flow is the payment step state machine for one browser session.
type Flow struct {
	intents   IntentCreator
	processor Processor
	records   HandoffReader
	notifier  PaidNotifier
	attempts  AttemptGuard
	logger    *logging.Logger
	metrics   *metrics.FlowMetrics

	mu         sync.Mutex
	phase      Phase
	record     *handoff.BookingRecord
	intent     *IntentInfo
	intentID   string
	message    string
	errorParam string
	inFlight   bool
	closed     bool
	generation uint64
}

func NewFlow(opts FlowOptions) *Flow {
	if opts.Intents == nil || opts.Processor == nil || opts.Records == nil {
		panic("payments: intents, processor and records are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{
		intents:   opts.Intents,
		processor: opts.Processor,
		records:   opts.Records,
		notifier:  opts.Notifier,
		attempts:  opts.Attempts,
		logger:    logger,
		metrics:   opts.Metrics,
		phase:     PhaseAwaitingBookingRecord,
	}
}

// Start reads the handed-off booking for reference and requests a payment
// intent. A missing record, or one for another reference, ends in
// PhaseMissingBookingRecord without calling the intent backend.
func (f *Flow) Start(ctx context.Context, reference string) error {
	f.mu.Lock()
	if f.closed || f.phase != PhaseAwaitingBookingRecord || f.inFlight {
		f.mu.Unlock()
		return ErrInvalidPhase
	}
	f.generation++
	gen := f.generation
	f.inFlight = true
	f.mu.Unlock()

	record, ok, err := f.records.Get(ctx)
	if err != nil {
		f.logger.Error("payments: handoff read failed", "reference", reference, "error", err)
		ok = false
	}
	if ok && (reference == "" || record.Reference != reference) {
		f.logger.Warn("payments: route reference does not match booking", "route_reference", reference, "booking_reference", record.Reference)
		ok = false
	}

	f.mu.Lock()
	if gen != f.generation {
		f.metrics.ObserveDropped("payment", "read_handoff")
		f.mu.Unlock()
		return nil
	}
	f.inFlight = false
	if !ok {
		f.message = MissingBookingMessage
		f.setPhase(PhaseMissingBookingRecord)
		f.mu.Unlock()
		return nil
	}
	f.record = &record
	return f.requestIntentLocked(ctx)
}

// RetryIntent repeats a failed intent creation.
func (f *Flow) RetryIntent(ctx context.Context) error {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return ErrInFlight
	}
	if f.closed || f.phase != PhaseCreatingIntent || f.record == nil {
		f.mu.Unlock()
		return ErrInvalidPhase
	}
	return f.requestIntentLocked(ctx)
}

// requestIntentLocked is called with f.mu held and releases it.
func (f *Flow) requestIntentLocked(ctx context.Context) error {
	record := *f.record
	f.message = ""
	f.generation++
	gen := f.generation
	f.inFlight = true
	f.setPhase(PhaseCreatingIntent)
	f.mu.Unlock()

	info, err := f.intents.CreateIntent(ctx, record)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation || f.phase != PhaseCreatingIntent {
		f.metrics.ObserveDropped("payment", "create_intent")
		return nil
	}
	f.inFlight = false
	if err != nil {
		f.logger.Warn("payments: intent creation failed", "reference", record.Reference, "error", err)
		f.message = apierror.UserMessage(err)
		return nil
	}
	f.intent = info
	f.setPhase(PhaseAwaitingUserConfirmation)
	return nil
}

// Confirm submits the widget's payment method to the processor.
func (f *Flow) Confirm(ctx context.Context, details PaymentDetails) error {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return ErrInFlight
	}
	if f.closed || (f.phase != PhaseAwaitingUserConfirmation && f.phase != PhaseConfirmError) {
		f.mu.Unlock()
		return ErrInvalidPhase
	}
	if details.PaymentMethod == "" {
		f.mu.Unlock()
		return ErrMissingPaymentMethod
	}
	secret := f.intent.ClientSecret
	reference := f.record.Reference
	f.message, f.errorParam = "", ""
	f.generation++
	gen := f.generation
	f.inFlight = true
	f.setPhase(PhaseConfirming)
	f.mu.Unlock()

	if f.attempts != nil {
		if result, err := f.attempts.AllowConfirm(ctx, reference); err == nil && !result.Allowed {
			f.mu.Lock()
			defer f.mu.Unlock()
			if gen != f.generation || f.phase != PhaseConfirming {
				f.metrics.ObserveDropped("payment", "confirm_payment")
				return nil
			}
			f.inFlight = false
			f.message = TooManyAttemptsMessage
			f.setPhase(PhaseAwaitingUserConfirmation)
			return nil
		}
	}

	conf, err := f.processor.Confirm(ctx, secret, details)

	f.mu.Lock()
	if gen != f.generation || f.phase != PhaseConfirming {
		f.metrics.ObserveDropped("payment", "confirm_payment")
		f.mu.Unlock()
		return nil
	}
	f.inFlight = false
	var procErr *ProcessorError
	switch {
	case errors.As(err, &procErr):
		f.message = procErr.Message
		f.errorParam = procErr.Param
		f.setPhase(PhaseAwaitingUserConfirmation)
		f.mu.Unlock()
		return nil
	case err != nil:
		f.logger.Warn("payments: confirmation failed", "reference", f.record.Reference, "error", err)
		f.message = apierror.UserMessage(err)
		f.setPhase(PhaseConfirmError)
		f.mu.Unlock()
		return nil
	case conf.Status != StatusSucceeded:
		f.logger.Info("payments: confirmation not yet complete", "reference", f.record.Reference, "status", conf.Status)
		f.intentID = conf.IntentID
		f.message = ProcessingIncompleteMessage
		f.setPhase(PhaseAwaitingUserConfirmation)
		f.mu.Unlock()
		return nil
	}
	f.intentID = conf.IntentID
	f.setPhase(PhasePaid)
	receipt := Receipt{
		Booking:     *f.record,
		IntentID:    conf.IntentID,
		ProductName: f.intent.ProductName,
		UnitAmount:  f.intent.UnitAmount,
		Currency:    f.intent.Currency,
	}
	f.mu.Unlock()

	f.logger.Info("payments: booking paid", "reference", receipt.Booking.Reference, "payment_intent", receipt.IntentID)
	if f.notifier != nil {
		if err := f.notifier.NotifyPaid(ctx, receipt); err != nil {
			f.logger.Error("payments: paid notification failed", "reference", receipt.Booking.Reference, "error", err)
		}
	}
	return nil
}

// RejectDetails surfaces a card error raised by the payment widget before
// anything reached the processor. It is shown like a processor rejection and
// leaves the flow awaiting a new submission.
func (f *Flow) RejectDetails(message, param string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return ErrInFlight
	}
	if f.closed || (f.phase != PhaseAwaitingUserConfirmation && f.phase != PhaseConfirmError) {
		return ErrInvalidPhase
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = MissingCardDetailsMessage
	}
	if runes := []rune(message); len(runes) > maxDetailsMessage {
		message = string(runes[:maxDetailsMessage])
	}
	f.message = message
	f.errorParam = strings.TrimSpace(param)
	f.setPhase(PhaseAwaitingUserConfirmation)
	return nil
}

// Close abandons the flow. A pending intent or confirmation response is
// dropped when it arrives.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.inFlight = false
	f.closed = true
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := State{
		Phase:      f.phase,
		Message:    f.message,
		ErrorParam: f.errorParam,
		IntentID:   f.intentID,
		InFlight:   f.inFlight,
	}
	if f.record != nil {
		record := *f.record
		s.Booking = &record
	}
	if f.intent != nil {
		s.ProductName = f.intent.ProductName
		s.UnitAmount = f.intent.UnitAmount
		s.Currency = f.intent.Currency
		s.DisplayPrice = FormatAmount(f.intent.UnitAmount, f.intent.Currency)
	}
	return s
}

func (f *Flow) setPhase(p Phase) {
	f.phase = p
	f.metrics.ObserveTransition("payment", p.String())
}
