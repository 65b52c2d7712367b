package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/wolfman30/homevisit-booking/internal/booking"
	"github.com/wolfman30/homevisit-booking/internal/payments"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var fieldLabels = map[string]string{
	booking.FieldFirstName: "First Name",
	booking.FieldSurname:   "Surname",
	booking.FieldPhone:     "Phone",
	booking.FieldEmail:     "Email",
	booking.FieldAddress:   "Address",
	booking.FieldPostcode:  "Postcode",
}

var fieldTypes = map[string]string{
	booking.FieldPhone: "tel",
	booking.FieldEmail: "email",
}

type views struct {
	tmpl *template.Template
}

func mustParseViews() *views {
	funcs := template.FuncMap{"dict": dict}
	return &views{tmpl: template.Must(template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))}
}

// dict builds a map from alternating keys and values for sub-templates.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("web: dict needs key/value pairs")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("web: dict key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

type fieldView struct {
	Name  string
	Label string
	Type  string
	Value string
	Error string
}

type bookingView struct {
	booking.State
	Fields    []fieldView
	Editable  bool
	ShowSlots bool
	Empty     bool
	CanSubmit bool
	Refresh   bool
}

func newBookingView(state booking.State) bookingView {
	v := bookingView{State: state, Refresh: state.InFlight}
	for _, name := range booking.Fields {
		typ := fieldTypes[name]
		if typ == "" {
			typ = "text"
		}
		v.Fields = append(v.Fields, fieldView{
			Name:  name,
			Label: fieldLabels[name],
			Type:  typ,
			Value: state.Form.Get(name),
			Error: state.FieldErrors[name],
		})
	}
	switch state.Phase {
	case booking.PhaseInput, booking.PhaseSlotFetchError:
		v.Editable = true
	case booking.PhaseSlotSelection, booking.PhaseSubmitting, booking.PhaseSubmitError:
		v.ShowSlots = true
	case booking.PhaseSlotSelectionEmpty:
		v.Empty = true
	}
	v.CanSubmit = v.ShowSlots && !state.InFlight && state.SelectedDate != "" && state.SelectedTime != ""
	return v
}

type paymentView struct {
	payments.State
	Reference      string
	PublishableKey string
	FakePayments   bool
	TestMethods    []string
}

func (v paymentView) Missing() bool  { return v.Phase == payments.PhaseMissingBookingRecord }
func (v paymentView) Paid() bool     { return v.Phase == payments.PhasePaid }
func (v paymentView) CanRetry() bool { return v.Phase == payments.PhaseCreatingIntent && !v.InFlight && v.Message != "" }
func (v paymentView) Refresh() bool  { return v.InFlight }

func (v paymentView) ShowCardForm() bool {
	return !v.InFlight && (v.Phase == payments.PhaseAwaitingUserConfirmation || v.Phase == payments.PhaseConfirmError)
}

func (v *views) renderBooking(w http.ResponseWriter, logger *logging.Logger, state booking.State) {
	v.render(w, logger, "booking.html", newBookingView(state))
}

func (v *views) renderPayment(w http.ResponseWriter, logger *logging.Logger, view paymentView) {
	if view.FakePayments {
		view.TestMethods = []string{payments.FakeCardSucceeds, payments.FakeCardDeclined, payments.FakeCardProcessing}
	}
	v.render(w, logger, "payment.html", view)
}

func (v *views) render(w http.ResponseWriter, logger *logging.Logger, name string, data any) {
	var buf bytes.Buffer
	if err := v.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error("web: render failed", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
