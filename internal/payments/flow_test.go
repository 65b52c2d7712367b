package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/homevisit-booking/internal/apierror"
	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
)

// gate blocks a fake call until released when both channels are set.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() gate {
	return gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g gate) wait() {
	if g.started != nil {
		g.started <- struct{}{}
		<-g.release
	}
}

type stubIntents struct {
	mu    sync.Mutex
	info  *IntentInfo
	err   error
	calls int
	gate  gate
}

func (s *stubIntents) CreateIntent(_ context.Context, _ handoff.BookingRecord) (*IntentInfo, error) {
	s.mu.Lock()
	s.calls++
	g, info, err := s.gate, s.info, s.err
	s.mu.Unlock()
	g.wait()
	return info, err
}

type stubProcessor struct {
	mu      sync.Mutex
	conf    *Confirmation
	err     error
	secrets []string
	gate    gate
}

func (s *stubProcessor) Confirm(_ context.Context, secret string, _ PaymentDetails) (*Confirmation, error) {
	s.mu.Lock()
	s.secrets = append(s.secrets, secret)
	g, conf, err := s.gate, s.conf, s.err
	s.mu.Unlock()
	g.wait()
	return conf, err
}

type recordingNotifier struct {
	receipts []Receipt
	err      error
}

func (n *recordingNotifier) NotifyPaid(_ context.Context, r Receipt) error {
	n.receipts = append(n.receipts, r)
	return n.err
}

type paymentHarness struct {
	flow      *Flow
	intents   *stubIntents
	processor *stubProcessor
	notifier  *recordingNotifier
	store     *handoff.MemoryStore
}

func newPaymentHarness(t *testing.T, withRecord bool) *paymentHarness {
	t.Helper()
	h := &paymentHarness{
		intents: &stubIntents{info: &IntentInfo{
			ClientSecret: "pi_1_secret_x", ProductName: "Boiler Service", UnitAmount: 2500, Currency: "gbp",
		}},
		processor: &stubProcessor{conf: &Confirmation{IntentID: "pi_1", Status: StatusSucceeded}},
		notifier:  &recordingNotifier{},
		store:     handoff.NewMemoryStore(),
	}
	if withRecord {
		require.NoError(t, h.store.Put(context.Background(), testRecord()))
	}
	h.flow = NewFlow(FlowOptions{
		Intents:   h.intents,
		Processor: h.processor,
		Records:   h.store,
		Notifier:  h.notifier,
	})
	return h
}

func TestPaymentFlowPaid(t *testing.T) {
	h := newPaymentHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.flow.Start(ctx, "REF1"))
	state := h.flow.Snapshot()
	require.Equal(t, PhaseAwaitingUserConfirmation, state.Phase)
	assert.Equal(t, "£25.00 GBP", state.DisplayPrice)
	assert.Equal(t, "Boiler Service", state.ProductName)
	require.NotNil(t, state.Booking)
	assert.Equal(t, "REF1", state.Booking.Reference)

	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	state = h.flow.Snapshot()
	assert.Equal(t, PhasePaid, state.Phase)
	assert.Equal(t, "pi_1", state.IntentID)
	assert.Equal(t, []string{"pi_1_secret_x"}, h.processor.secrets)

	require.Len(t, h.notifier.receipts, 1)
	assert.Equal(t, "REF1", h.notifier.receipts[0].Booking.Reference)
	assert.Equal(t, int64(2500), h.notifier.receipts[0].UnitAmount)

	assert.ErrorIs(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}), ErrInvalidPhase)
}

func TestPaymentFlowMissingRecord(t *testing.T) {
	h := newPaymentHarness(t, false)
	require.NoError(t, h.flow.Start(context.Background(), "REF1"))

	state := h.flow.Snapshot()
	assert.Equal(t, PhaseMissingBookingRecord, state.Phase)
	assert.Equal(t, MissingBookingMessage, state.Message)
	assert.Zero(t, h.intents.calls)
	assert.ErrorIs(t, h.flow.Start(context.Background(), "REF1"), ErrInvalidPhase)
}

func TestPaymentFlowReferenceMismatchIsMissing(t *testing.T) {
	for _, ref := range []string{"OTHER", ""} {
		h := newPaymentHarness(t, true)
		require.NoError(t, h.flow.Start(context.Background(), ref))
		assert.Equal(t, PhaseMissingBookingRecord, h.flow.Snapshot().Phase)
		assert.Zero(t, h.intents.calls)
	}
}

func TestPaymentFlowIntentFailureIsRetryable(t *testing.T) {
	h := newPaymentHarness(t, true)
	info := h.intents.info
	h.intents.info, h.intents.err = nil, &apierror.ServiceError{Op: "create intent", Status: 400, Message: "No such price"}
	ctx := context.Background()

	require.NoError(t, h.flow.Start(ctx, "REF1"))
	state := h.flow.Snapshot()
	assert.Equal(t, PhaseCreatingIntent, state.Phase)
	assert.Equal(t, "No such price", state.Message)
	assert.False(t, state.InFlight)
	assert.Equal(t, 1, h.intents.calls)
	assert.ErrorIs(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}), ErrInvalidPhase)

	h.intents.info, h.intents.err = info, nil
	require.NoError(t, h.flow.RetryIntent(ctx))
	assert.Equal(t, PhaseAwaitingUserConfirmation, h.flow.Snapshot().Phase)
	assert.Equal(t, 2, h.intents.calls)
	assert.ErrorIs(t, h.flow.RetryIntent(ctx), ErrInvalidPhase)
}

func TestPaymentFlowProcessorRejectionAllowsResubmit(t *testing.T) {
	h := newPaymentHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.flow.Start(ctx, "REF1"))

	h.processor.conf, h.processor.err = nil, &ProcessorError{Code: "card_declined", Param: "payment_method", Message: "Your card was declined."}
	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	state := h.flow.Snapshot()
	assert.Equal(t, PhaseAwaitingUserConfirmation, state.Phase)
	assert.Equal(t, "Your card was declined.", state.Message)
	assert.Equal(t, "payment_method", state.ErrorParam)
	assert.Empty(t, h.notifier.receipts)

	h.processor.conf, h.processor.err = &Confirmation{IntentID: "pi_1", Status: StatusSucceeded}, nil
	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_2"}))
	state = h.flow.Snapshot()
	assert.Equal(t, PhasePaid, state.Phase)
	assert.Empty(t, state.Message)
}

func TestPaymentFlowNonSucceededStatus(t *testing.T) {
	h := newPaymentHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.flow.Start(ctx, "REF1"))

	h.processor.conf = &Confirmation{IntentID: "pi_1", Status: "requires_action"}
	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	state := h.flow.Snapshot()
	assert.Equal(t, PhaseAwaitingUserConfirmation, state.Phase)
	assert.Equal(t, ProcessingIncompleteMessage, state.Message)
}

func TestPaymentFlowNetworkFailureIsConfirmError(t *testing.T) {
	h := newPaymentHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.flow.Start(ctx, "REF1"))

	h.processor.conf, h.processor.err = nil, &apierror.NetworkError{Op: "confirm", Err: errors.New("reset")}
	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	state := h.flow.Snapshot()
	assert.Equal(t, PhaseConfirmError, state.Phase)
	assert.Equal(t, apierror.GenericNetworkMessage, state.Message)

	h.processor.conf, h.processor.err = &Confirmation{IntentID: "pi_1", Status: StatusSucceeded}, nil
	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	assert.Equal(t, PhasePaid, h.flow.Snapshot().Phase)
}

func TestPaymentFlowNotifierFailureStillPaid(t *testing.T) {
	h := newPaymentHarness(t, true)
	h.notifier.err = errors.New("smtp down")
	ctx := context.Background()
	require.NoError(t, h.flow.Start(ctx, "REF1"))
	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	assert.Equal(t, PhasePaid, h.flow.Snapshot().Phase)
}

func TestPaymentFlowRequiresPaymentMethod(t *testing.T) {
	h := newPaymentHarness(t, true)
	require.NoError(t, h.flow.Start(context.Background(), "REF1"))
	assert.ErrorIs(t, h.flow.Confirm(context.Background(), PaymentDetails{}), ErrMissingPaymentMethod)
	assert.Empty(t, h.processor.secrets)
}

func TestPaymentFlowConfirmAttemptsLimited(t *testing.T) {
	redisClient, _ := setupTestRedis(t)
	h := newPaymentHarness(t, true)
	h.processor.conf = nil
	h.processor.err = &ProcessorError{Code: "card_declined", Message: "Your card was declined."}
	h.flow = NewFlow(FlowOptions{
		Intents:   h.intents,
		Processor: h.processor,
		Records:   h.store,
		Attempts:  NewVelocityChecker(redisClient, VelocityConfig{MaxConfirmsPerBooking: 2}, nil),
	})
	ctx := context.Background()
	require.NoError(t, h.flow.Start(ctx, "REF1"))

	for i := 0; i < 2; i++ {
		require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
		assert.Equal(t, "Your card was declined.", h.flow.Snapshot().Message)
	}

	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	state := h.flow.Snapshot()
	assert.Equal(t, PhaseAwaitingUserConfirmation, state.Phase)
	assert.Equal(t, TooManyAttemptsMessage, state.Message)
	assert.False(t, state.InFlight)
	assert.Len(t, h.processor.secrets, 2)
}

func TestPaidNotifiersJoinErrors(t *testing.T) {
	first := &recordingNotifier{}
	second := &recordingNotifier{err: errors.New("smtp down")}
	notifiers := PaidNotifiers{first, nil, second}

	err := notifiers.NotifyPaid(context.Background(), Receipt{IntentID: "pi_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Len(t, first.receipts, 1)
	assert.Len(t, second.receipts, 1)
}

func TestPaymentFlowRejectDetailsSurfacedLikeProcessorError(t *testing.T) {
	h := newPaymentHarness(t, true)
	ctx := context.Background()
	assert.ErrorIs(t, h.flow.RejectDetails("Your card number is incomplete.", "number"), ErrInvalidPhase)

	require.NoError(t, h.flow.Start(ctx, "REF1"))
	require.NoError(t, h.flow.RejectDetails(" Your card number is incomplete. ", "number"))

	state := h.flow.Snapshot()
	assert.Equal(t, PhaseAwaitingUserConfirmation, state.Phase)
	assert.Equal(t, "Your card number is incomplete.", state.Message)
	assert.Equal(t, "number", state.ErrorParam)
	assert.Empty(t, h.processor.secrets)

	require.NoError(t, h.flow.RejectDetails("", ""))
	assert.Equal(t, MissingCardDetailsMessage, h.flow.Snapshot().Message)

	// a later submission clears the widget error
	require.NoError(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}))
	state = h.flow.Snapshot()
	assert.Equal(t, PhasePaid, state.Phase)
	assert.Empty(t, state.Message)
	assert.Empty(t, state.ErrorParam)
}

func TestPaymentFlowRejectDetailsTruncatesLongMessages(t *testing.T) {
	h := newPaymentHarness(t, true)
	require.NoError(t, h.flow.Start(context.Background(), "REF1"))

	long := strings.Repeat("é", maxDetailsMessage+50)
	require.NoError(t, h.flow.RejectDetails(long, ""))
	assert.Equal(t, maxDetailsMessage, utf8.RuneCountInString(h.flow.Snapshot().Message))
}

func TestPaymentFlowGuardsInFlightIntent(t *testing.T) {
	h := newPaymentHarness(t, true)
	h.intents.gate = newGate()

	done := make(chan error, 1)
	go func() { done <- h.flow.Start(context.Background(), "REF1") }()
	<-h.intents.gate.started

	state := h.flow.Snapshot()
	assert.Equal(t, PhaseCreatingIntent, state.Phase)
	assert.True(t, state.InFlight)
	assert.ErrorIs(t, h.flow.RetryIntent(context.Background()), ErrInFlight)
	assert.ErrorIs(t, h.flow.Confirm(context.Background(), PaymentDetails{PaymentMethod: "pm_1"}), ErrInFlight)
	assert.ErrorIs(t, h.flow.RejectDetails("bad card", ""), ErrInFlight)

	close(h.intents.gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseAwaitingUserConfirmation, h.flow.Snapshot().Phase)
	assert.Equal(t, 1, h.intents.calls)
}

func TestPaymentFlowGuardsInFlightConfirm(t *testing.T) {
	h := newPaymentHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.flow.Start(ctx, "REF1"))
	h.processor.gate = newGate()

	done := make(chan error, 1)
	go func() { done <- h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}) }()
	<-h.processor.gate.started

	state := h.flow.Snapshot()
	assert.Equal(t, PhaseConfirming, state.Phase)
	assert.True(t, state.InFlight)
	assert.ErrorIs(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_2"}), ErrInFlight)
	assert.ErrorIs(t, h.flow.RetryIntent(ctx), ErrInFlight)

	close(h.processor.gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, PhasePaid, h.flow.Snapshot().Phase)
	assert.Len(t, h.processor.secrets, 1)
	assert.Len(t, h.notifier.receipts, 1)
}

func newMeteredHarness(t *testing.T) (*paymentHarness, *prometheus.Registry) {
	t.Helper()
	h := newPaymentHarness(t, true)
	reg := prometheus.NewRegistry()
	h.flow = NewFlow(FlowOptions{
		Intents:   h.intents,
		Processor: h.processor,
		Records:   h.store,
		Notifier:  h.notifier,
		Metrics:   metrics.NewFlowMetrics(reg),
	})
	return h, reg
}

func TestPaymentFlowDropsLateIntentAfterClose(t *testing.T) {
	h, reg := newMeteredHarness(t)
	h.intents.gate = newGate()

	done := make(chan error, 1)
	go func() { done <- h.flow.Start(context.Background(), "REF1") }()
	<-h.intents.gate.started

	h.flow.Close()
	close(h.intents.gate.release)
	require.NoError(t, <-done)

	state := h.flow.Snapshot()
	assert.Equal(t, PhaseCreatingIntent, state.Phase)
	assert.Empty(t, state.DisplayPrice)
	assert.False(t, state.InFlight)
	assert.Equal(t, 1.0, droppedCount(t, reg, "create_intent"))
	assert.ErrorIs(t, h.flow.RetryIntent(context.Background()), ErrInvalidPhase)
}

func TestPaymentFlowDropsLateConfirmationAfterClose(t *testing.T) {
	h, reg := newMeteredHarness(t)
	ctx := context.Background()
	require.NoError(t, h.flow.Start(ctx, "REF1"))
	h.processor.gate = newGate()

	done := make(chan error, 1)
	go func() { done <- h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}) }()
	<-h.processor.gate.started

	h.flow.Close()
	close(h.processor.gate.release)
	require.NoError(t, <-done)

	assert.Equal(t, PhaseConfirming, h.flow.Snapshot().Phase)
	assert.Empty(t, h.notifier.receipts)
	assert.Equal(t, 1.0, droppedCount(t, reg, "confirm_payment"))
	assert.ErrorIs(t, h.flow.Confirm(ctx, PaymentDetails{PaymentMethod: "pm_1"}), ErrInvalidPhase)
}

func droppedCount(t *testing.T, reg *prometheus.Registry, operation string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "homevisit_flow_stale_responses_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["flow"] == "payment" && labels["operation"] == operation {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
