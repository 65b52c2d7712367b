package booking

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/homevisit-booking/internal/apierror"
	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// Phase is the booking step's UI phase.
type Phase int

const (
	PhaseInput Phase = iota
	PhaseSlotFetching
	PhaseSlotFetchError
	PhaseSlotSelection
	PhaseSlotSelectionEmpty
	PhaseSubmitting
	PhaseSubmitError
	// PhaseBooked is terminal: the record is stored and navigation has been requested.
	PhaseBooked
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseSlotFetching:
		return "slot_fetching"
	case PhaseSlotFetchError:
		return "slot_fetch_error"
	case PhaseSlotSelection:
		return "slot_selection"
	case PhaseSlotSelectionEmpty:
		return "slot_selection_empty"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSubmitError:
		return "submit_error"
	case PhaseBooked:
		return "booked"
	default:
		return "unknown"
	}
}

// AvailabilityQuery asks the scheduling service for slots in a date range.
type AvailabilityQuery struct {
	Postcode     string
	EarliestDate time.Time
	LatestDate   time.Time
	ClientRef    string
}

// BookingRequest reserves one slot.
type BookingRequest struct {
	Postcode    string
	VisitDate   string
	WindowStart string
	WindowEnd   string
	ClientRef   string
}

// BookingConfirmation is the scheduling service's answer to a successful booking.
type BookingConfirmation struct {
	Reference string
	Summary   string
}

// SlotDirectory lists available visit slots.
type SlotDirectory interface {
	FetchSlots(ctx context.Context, query AvailabilityQuery) ([]Slot, error)
}

// SlotBooker books a visit slot.
type SlotBooker interface {
	BookSlot(ctx context.Context, req BookingRequest) (*BookingConfirmation, error)
}

// HandoffWriter stores the confirmed booking for the payment step.
type HandoffWriter interface {
	Put(ctx context.Context, record handoff.BookingRecord) error
}

// Navigator moves the session on to the payment step.
type Navigator interface {
	ToPayment(reference string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(reference string)

func (fn NavigatorFunc) ToPayment(reference string) { fn(reference) }

// NewClientRef returns a generator of "<prefix>-<uuid>" correlation ids.
func NewClientRef(prefix string) func() string {
	return func() string {
		if prefix == "" {
			return uuid.NewString()
		}
		return prefix + "-" + uuid.NewString()
	}
}

// Options wires a Flow to its collaborators. Directory, Booker, Handoff and
// Navigator are required.
type Options struct {
	Directory        SlotDirectory
	Booker           SlotBooker
	Handoff          HandoffWriter
	Navigator        Navigator
	Logger           *logging.Logger
	Metrics          *metrics.FlowMetrics
	Now              func() time.Time
	NewClientRef     func() string
	SearchWindowDays int
}

// State is a copy of the flow's state for rendering.
type State struct {
	Phase        Phase
	Form         ContactForm
	FieldErrors  FieldErrors
	Slots        []Slot
	Dates        []string
	Times        []string
	SelectedDate string
	SelectedTime string
	Message      string
	Reference    string
	InFlight     bool
}

// Flow is the booking step state machine for one browser session.
//
// Network calls run without holding the lock. Each call captures the
// generation it started in; a response arriving after Back (or any other
// transition that bumps the generation) is discarded.
type Flow struct {
	directory  SlotDirectory
	booker     SlotBooker
	handoff    HandoffWriter
	navigator  Navigator
	logger     *logging.Logger
	metrics    *metrics.FlowMetrics
	now        func() time.Time
	clientRef  func() string
	windowDays int

	mu           sync.Mutex
	phase        Phase
	form         ContactForm
	fieldErrors  FieldErrors
	slots        []Slot
	dates        []string
	times        []string
	selectedDate string
	selectedTime string
	message      string
	reference    string
	inFlight     bool
	closed       bool
	generation   uint64
}

// NewFlow starts a flow in PhaseInput with the given form, usually the
// result of PrefillFromQuery.
func NewFlow(opts Options, initial ContactForm) *Flow {
	if opts.Directory == nil || opts.Booker == nil || opts.Handoff == nil || opts.Navigator == nil {
		panic("booking: directory, booker, handoff and navigator are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	clientRef := opts.NewClientRef
	if clientRef == nil {
		clientRef = uuid.NewString
	}
	days := opts.SearchWindowDays
	if days <= 0 {
		days = 7
	}
	return &Flow{
		directory:   opts.Directory,
		booker:      opts.Booker,
		handoff:     opts.Handoff,
		navigator:   opts.Navigator,
		logger:      logger,
		metrics:     opts.Metrics,
		now:         now,
		clientRef:   clientRef,
		windowDays:  days,
		phase:       PhaseInput,
		form:        initial,
		fieldErrors: FieldErrors{},
	}
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	errs := make(FieldErrors, len(f.fieldErrors))
	for k, v := range f.fieldErrors {
		errs[k] = v
	}
	return State{
		Phase:        f.phase,
		Form:         f.form,
		FieldErrors:  errs,
		Slots:        slices.Clone(f.slots),
		Dates:        slices.Clone(f.dates),
		Times:        slices.Clone(f.times),
		SelectedDate: f.selectedDate,
		SelectedTime: f.selectedTime,
		Message:      f.message,
		Reference:    f.reference,
		InFlight:     f.inFlight,
	}
}

// UpdateForm replaces the contact form. The form is editable only before a
// search has succeeded.
func (f *Flow) UpdateForm(form ContactForm) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return ErrInFlight
	}
	if f.phase != PhaseInput && f.phase != PhaseSlotFetchError {
		return ErrInvalidPhase
	}
	f.form = form
	if f.phase == PhaseSlotFetchError {
		f.message = ""
		f.setPhase(PhaseInput)
	}
	return nil
}

// RequestAvailability validates the form and, when clean, fetches a week of
// slots. Validation failures and upstream failures end up in the state, not
// in the returned error.
func (f *Flow) RequestAvailability(ctx context.Context) error {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return ErrInFlight
	}
	if f.closed || (f.phase != PhaseInput && f.phase != PhaseSlotFetchError) {
		f.mu.Unlock()
		return ErrInvalidPhase
	}
	f.fieldErrors = Validate(f.form)
	if !f.fieldErrors.Empty() {
		f.message = ""
		f.setPhase(PhaseInput)
		f.mu.Unlock()
		return nil
	}
	today := f.now()
	query := AvailabilityQuery{
		Postcode:     f.form.Postcode,
		EarliestDate: today,
		LatestDate:   today.AddDate(0, 0, f.windowDays),
		ClientRef:    f.clientRef(),
	}
	gen := f.begin(PhaseSlotFetching)
	f.mu.Unlock()

	slots, err := f.directory.FetchSlots(ctx, query)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stale(gen, PhaseSlotFetching, "fetch_slots") {
		return nil
	}
	f.inFlight = false
	if err != nil {
		f.logger.Warn("booking: slot fetch failed", "client_ref", query.ClientRef, "error", err)
		f.message = apierror.UserMessage(err)
		f.setPhase(PhaseSlotFetchError)
		return nil
	}
	f.replaceSlots(slots)
	if len(f.dates) == 0 {
		f.message = NoSlotsMessage
		f.setPhase(PhaseSlotSelectionEmpty)
		return nil
	}
	f.logger.Info("booking: slots fetched", "client_ref", query.ClientRef, "slots", len(slots), "dates", len(f.dates))
	f.setPhase(PhaseSlotSelection)
	return nil
}

// SelectDate picks one of the offered dates ("" clears the choice) and
// recomputes the time options. The selected time is always cleared.
func (f *Flow) SelectDate(date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.selectable(); err != nil {
		return err
	}
	if date != "" && !slices.Contains(f.dates, date) {
		return ErrUnknownOption
	}
	f.selectedDate = date
	f.times = TimeGroup(f.slots, date)
	f.selectedTime = ""
	f.leaveSubmitError()
	return nil
}

// SelectTime picks one of the time windows offered for the selected date.
func (f *Flow) SelectTime(window string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.selectable(); err != nil {
		return err
	}
	if window != "" && !slices.Contains(f.times, window) {
		return ErrUnknownOption
	}
	f.selectedTime = window
	f.leaveSubmitError()
	return nil
}

// SubmitBooking books the selected slot. On success the booking record is
// written to the handoff store and the navigator is sent to payment.
func (f *Flow) SubmitBooking(ctx context.Context) error {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return ErrInFlight
	}
	if f.closed || (f.phase != PhaseSlotSelection && f.phase != PhaseSubmitError) {
		f.mu.Unlock()
		return ErrInvalidPhase
	}
	if f.selectedDate == "" || f.selectedTime == "" {
		f.mu.Unlock()
		return ErrIncompleteSelection
	}
	start, end, ok := SplitWindow(f.selectedTime)
	if !ok {
		f.mu.Unlock()
		return ErrUnknownOption
	}
	req := BookingRequest{
		Postcode:    f.form.Postcode,
		VisitDate:   f.selectedDate,
		WindowStart: start,
		WindowEnd:   end,
		ClientRef:   f.clientRef(),
	}
	record := handoff.BookingRecord{
		FirstName:   f.form.FirstName,
		Surname:     f.form.Surname,
		Phone:       f.form.Phone,
		Email:       f.form.Email,
		Address:     f.form.Address,
		Postcode:    f.form.Postcode,
		VisitDate:   f.selectedDate,
		VisitWindow: f.selectedTime,
	}
	f.message = ""
	gen := f.begin(PhaseSubmitting)
	f.mu.Unlock()

	confirmation, err := f.booker.BookSlot(ctx, req)
	if err == nil && (confirmation == nil || confirmation.Reference == "") {
		err = &apierror.ServiceError{Op: "book slot", Status: 200, Message: MissingRefMessage}
	}
	if err == nil {
		record.Reference = confirmation.Reference
		record.Summary = confirmation.Summary
		if putErr := f.handoff.Put(ctx, record); putErr != nil {
			f.logger.Error("booking: handoff write failed", "reference", record.Reference, "error", putErr)
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.stale(gen, PhaseSubmitting, "book_slot") {
				return nil
			}
			f.inFlight = false
			f.message = HandoffSaveMessage
			f.setPhase(PhaseSubmitError)
			return nil
		}
	}

	f.mu.Lock()
	if f.stale(gen, PhaseSubmitting, "book_slot") {
		f.mu.Unlock()
		return nil
	}
	f.inFlight = false
	if err != nil {
		f.logger.Warn("booking: submission failed", "client_ref", req.ClientRef, "error", err)
		f.message = apierror.UserMessage(err)
		f.setPhase(PhaseSubmitError)
		f.mu.Unlock()
		return nil
	}
	f.reference = record.Reference
	f.setPhase(PhaseBooked)
	f.mu.Unlock()

	f.logger.Info("booking: slot booked", "reference", record.Reference, "visit_date", record.VisitDate)
	f.navigator.ToPayment(record.Reference)
	return nil
}

// Back returns to PhaseInput, discarding slots and selections but keeping
// the form. A pending fetch is abandoned and its response ignored.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.phase {
	case PhaseSlotFetching, PhaseSlotFetchError, PhaseSlotSelection, PhaseSlotSelectionEmpty, PhaseSubmitError:
	default:
		return ErrInvalidPhase
	}
	f.generation++
	f.inFlight = false
	f.replaceSlots(nil)
	f.message = ""
	f.setPhase(PhaseInput)
	return nil
}

// Close abandons the flow when the session replaces or drops it. Pending
// responses are dropped and never navigate.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.inFlight = false
	f.closed = true
}

func (f *Flow) begin(phase Phase) uint64 {
	f.generation++
	f.inFlight = true
	f.setPhase(phase)
	return f.generation
}

func (f *Flow) stale(gen uint64, phase Phase, op string) bool {
	if gen == f.generation && f.phase == phase {
		return false
	}
	f.metrics.ObserveDropped("booking", op)
	f.logger.Debug("booking: dropping late response", "operation", op, "phase", f.phase.String())
	return true
}

func (f *Flow) selectable() error {
	if f.inFlight {
		return ErrInFlight
	}
	if f.phase != PhaseSlotSelection && f.phase != PhaseSubmitError {
		return ErrInvalidPhase
	}
	return nil
}

func (f *Flow) leaveSubmitError() {
	if f.phase == PhaseSubmitError {
		f.message = ""
		f.setPhase(PhaseSlotSelection)
	}
}

func (f *Flow) replaceSlots(slots []Slot) {
	f.slots = slots
	f.dates = DateGroup(slots)
	f.times = nil
	f.selectedDate = ""
	f.selectedTime = ""
}

func (f *Flow) setPhase(p Phase) {
	f.phase = p
	f.metrics.ObserveTransition("booking", p.String())
}
