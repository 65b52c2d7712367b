// Package web serves the booking and payment pages. Each browser session
// owns one booking flow and one payment flow; form posts drive the flows and
// redirect back to the page (post/redirect/get).
package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/homevisit-booking/internal/booking"
	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
	"github.com/wolfman30/homevisit-booking/internal/payments"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

const (
	bookingPath = "/booking"
	paymentPath = "/payment"
)

// Config wires the handler to its collaborators. Directory, Booker, Intents,
// Processor and Handoff are required.
type Config struct {
	Directory booking.SlotDirectory
	Booker    booking.SlotBooker
	Intents   payments.IntentCreator
	Processor payments.Processor
	Handoff   handoff.Sessions
	Notifier  payments.PaidNotifier
	Attempts  payments.AttemptGuard
	Sessions  *Registry
	Metrics   *metrics.FlowMetrics
	Logger    *logging.Logger

	CookieName           string
	SecureCookie         bool
	SearchWindowDays     int
	ClientRefPrefix      string
	StripePublishableKey string
	FakePayments         bool
	Now                  func() time.Time
}

// Handler serves the booking and payment pages.
type Handler struct {
	cfg      Config
	sessions *Registry
	logger   *logging.Logger
	views    *views
}

func NewHandler(cfg Config) *Handler {
	if cfg.Directory == nil || cfg.Booker == nil || cfg.Intents == nil || cfg.Processor == nil || cfg.Handoff == nil {
		panic("web: directory, booker, intents, processor and handoff are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewRegistry(0)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "booking_session"
	}
	h := &Handler{
		cfg:      cfg,
		sessions: cfg.Sessions,
		logger:   logger,
		views:    mustParseViews(),
	}
	cfg.Sessions.OnEvict(h.sessionEvicted)
	return h
}

// sessionEvicted drops in-process handoff records of an evicted session.
func (h *Handler) sessionEvicted(s *Session) {
	if f, ok := h.cfg.Handoff.(handoff.Forgetter); ok {
		f.Forget(s.ID)
	}
	h.logger.Debug("web: session evicted", "session_id", s.ID)
}

// Routes mounts the page routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, bookingPath, http.StatusSeeOther)
	})
	r.Route(bookingPath, func(r chi.Router) {
		r.Get("/", h.BookingPage)
		r.Post("/availability", h.RequestAvailability)
		r.Post("/date", h.SelectDate)
		r.Post("/time", h.SelectTime)
		r.Post("/submit", h.SubmitBooking)
		r.Post("/back", h.Back)
	})
	r.Route(paymentPath, func(r chi.Router) {
		r.Get("/", h.PaymentPage)
		r.Post("/retry", h.RetryIntent)
		r.Post("/confirm", h.ConfirmPayment)
	})
}

// BookingPage renders the booking step. utm_<field> parameters seed a fresh
// flow once and are then stripped by redirecting to the bare path.
func (h *Handler) BookingPage(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	query := r.URL.Query()
	if booking.HasPrefill(query) {
		s.mu.Lock()
		previous := s.booking
		s.booking = h.newBookingFlow(s, booking.PrefillFromQuery(query))
		s.mu.Unlock()
		if previous != nil {
			previous.Close()
		}
		http.Redirect(w, r, bookingPath, http.StatusSeeOther)
		return
	}
	flow := h.bookingFlow(s)
	h.views.renderBooking(w, h.logger, flow.Snapshot())
}

func (h *Handler) RequestAvailability(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	flow := h.bookingFlow(s)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if err := flow.UpdateForm(booking.FormFromValues(r.PostForm)); err != nil {
		h.logAction("update_form", err)
	}
	h.logAction("request_availability", flow.RequestAvailability(detach(r.Context())))
	http.Redirect(w, r, bookingPath, http.StatusSeeOther)
}

func (h *Handler) SelectDate(w http.ResponseWriter, r *http.Request) {
	flow := h.bookingFlow(h.session(w, r))
	err := flow.SelectDate(r.FormValue("date"))
	if errors.Is(err, booking.ErrUnknownOption) {
		http.Error(w, "unknown date", http.StatusBadRequest)
		return
	}
	h.logAction("select_date", err)
	http.Redirect(w, r, bookingPath, http.StatusSeeOther)
}

func (h *Handler) SelectTime(w http.ResponseWriter, r *http.Request) {
	flow := h.bookingFlow(h.session(w, r))
	err := flow.SelectTime(r.FormValue("time"))
	if errors.Is(err, booking.ErrUnknownOption) {
		http.Error(w, "unknown time", http.StatusBadRequest)
		return
	}
	h.logAction("select_time", err)
	http.Redirect(w, r, bookingPath, http.StatusSeeOther)
}

func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	flow := h.bookingFlow(s)
	h.logAction("submit_booking", flow.SubmitBooking(detach(r.Context())))
	if target := s.takeNavigation(); target != "" {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, bookingPath, http.StatusSeeOther)
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	flow := h.bookingFlow(h.session(w, r))
	h.logAction("back", flow.Back())
	http.Redirect(w, r, bookingPath, http.StatusSeeOther)
}

// PaymentPage starts the payment flow for the route's reference on first
// visit and renders its state on every visit.
func (h *Handler) PaymentPage(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	flow, fresh := h.paymentFlow(s, reference)
	if fresh {
		h.logAction("start_payment", flow.Start(detach(r.Context()), reference))
	}
	h.views.renderPayment(w, h.logger, paymentView{
		State:          flow.Snapshot(),
		Reference:      reference,
		PublishableKey: h.cfg.StripePublishableKey,
		FakePayments:   h.cfg.FakePayments,
	})
}

func (h *Handler) RetryIntent(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	reference := strings.TrimSpace(r.FormValue("reference"))
	if flow, ok := h.existingPaymentFlow(s, reference); ok {
		h.logAction("retry_intent", flow.RetryIntent(detach(r.Context())))
	}
	http.Redirect(w, r, paymentURL(reference), http.StatusSeeOther)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	reference := strings.TrimSpace(r.FormValue("reference"))
	flow, ok := h.existingPaymentFlow(s, reference)
	if !ok {
		http.Redirect(w, r, paymentURL(reference), http.StatusSeeOther)
		return
	}
	details := payments.PaymentDetails{
		PaymentMethod: strings.TrimSpace(r.FormValue("payment_method")),
		BillingName:   strings.TrimSpace(r.FormValue("billing_name")),
		BillingEmail:  strings.TrimSpace(r.FormValue("billing_email")),
	}
	// The widget posts card_error instead of a payment method when it
	// rejects the card itself.
	if details.PaymentMethod == "" {
		h.logAction("reject_details", flow.RejectDetails(r.FormValue("card_error"), r.FormValue("card_error_param")))
		http.Redirect(w, r, paymentURL(reference), http.StatusSeeOther)
		return
	}
	h.logAction("confirm_payment", flow.Confirm(detach(r.Context()), details))
	http.Redirect(w, r, paymentURL(reference), http.StatusSeeOther)
}

// session returns the caller's session, creating it and setting the cookie
// when needed. A cookie unknown to the registry is adopted so the handoff
// record stored under it stays reachable.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *Session {
	var id string
	if c, err := r.Cookie(h.cfg.CookieName); err == nil {
		id = c.Value
	}
	if s, ok := h.sessions.Get(id); ok {
		return s
	}
	s := h.sessions.Adopt(id)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// bookingFlow returns the session's booking flow. A finished booking is
// replaced so a return visit starts a new one.
func (h *Handler) bookingFlow(s *Session) *booking.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booking == nil || s.booking.Snapshot().Phase == booking.PhaseBooked {
		if s.booking != nil {
			s.booking.Close()
		}
		s.booking = h.newBookingFlow(s, booking.ContactForm{})
	}
	return s.booking
}

func (h *Handler) newBookingFlow(s *Session, form booking.ContactForm) *booking.Flow {
	return booking.NewFlow(booking.Options{
		Directory:        h.cfg.Directory,
		Booker:           h.cfg.Booker,
		Handoff:          h.cfg.Handoff.For(s.ID),
		Navigator:        s,
		Logger:           h.logger.With("session_id", s.ID),
		Metrics:          h.cfg.Metrics,
		Now:              h.cfg.Now,
		NewClientRef:     booking.NewClientRef(h.cfg.ClientRefPrefix),
		SearchWindowDays: h.cfg.SearchWindowDays,
	}, form)
}

// paymentFlow returns the flow for reference, creating one when the session
// has none for it. fresh reports whether the caller must Start it.
func (h *Handler) paymentFlow(s *Session, reference string) (*payments.Flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment != nil && s.paymentRef == reference {
		return s.payment, false
	}
	if s.payment != nil {
		s.payment.Close()
	}
	s.payment = payments.NewFlow(payments.FlowOptions{
		Intents:   h.cfg.Intents,
		Processor: h.cfg.Processor,
		Records:   h.cfg.Handoff.For(s.ID),
		Notifier:  h.cfg.Notifier,
		Attempts:  h.cfg.Attempts,
		Logger:    h.logger.With("session_id", s.ID),
		Metrics:   h.cfg.Metrics,
	})
	s.paymentRef = reference
	return s.payment, true
}

func (h *Handler) existingPaymentFlow(s *Session, reference string) (*payments.Flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment == nil || s.paymentRef != reference {
		return nil, false
	}
	return s.payment, true
}

// logAction records guard rejections; they only mean the page was stale.
func (h *Handler) logAction(action string, err error) {
	if err == nil {
		return
	}
	h.logger.Debug("web: action rejected", "action", action, "error", err)
}

// detach keeps request values for tracing but lets an upstream call finish
// when the browser goes away, so the flow still settles.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func paymentURL(reference string) string {
	return paymentPath + "?" + url.Values{"reference": {reference}}.Encode()
}
