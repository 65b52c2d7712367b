package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/payments"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), TypeBookingPaidV1, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), TypeBookingPaidV1, map[string]string{"reference": "REF1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "type", "payload", "created_at"}).AddRow(id, TypeBookingPaidV1, []byte(`{"reference":"REF1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPaidRecorderInsertsEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	recorder := NewPaidRecorder(NewOutboxStore(mock))
	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), TypeBookingPaidV1, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = recorder.NotifyPaid(context.Background(), payments.Receipt{
		Booking:    handoff.BookingRecord{Reference: "REF1", VisitDate: "2024-05-01"},
		IntentID:   "pi_1",
		UnitAmount: 2500,
		Currency:   "gbp",
	})
	if err != nil {
		t.Fatalf("notify paid: %v", err)
	}

	mock.ExpectExec("INSERT INTO outbox").WillReturnError(errors.New("connection refused"))
	if err := recorder.NotifyPaid(context.Background(), payments.Receipt{}); err == nil {
		t.Fatal("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type stubHandler struct {
	handled []uuid.UUID
	fail    map[uuid.UUID]bool
}

func (h *stubHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.handled = append(h.handled, entry.ID)
	if h.fail[entry.ID] {
		return errors.New("downstream unavailable")
	}
	return nil
}

func TestDelivererDrainMarksOnlyDelivered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	okID, failID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id").WithArgs(int32(5)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "type", "payload", "created_at"}).
			AddRow(okID, TypeBookingPaidV1, []byte(`{}`), now).
			AddRow(failID, TypeBookingPaidV1, []byte(`{}`), now),
	)
	mock.ExpectExec("UPDATE outbox").WithArgs(okID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	handler := &stubHandler{fail: map[uuid.UUID]bool{failID: true}}
	d := NewDeliverer(NewOutboxStore(mock), handler, nil).WithBatchSize(5)
	d.drain(context.Background())

	if len(handler.handled) != 2 {
		t.Fatalf("expected both entries handled, got %d", len(handler.handled))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWebhookHandler(t *testing.T) {
	var gotType string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("X-Event-Type")
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["reference"] == "FAIL" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.URL, time.Second)
	entry := OutboxEntry{ID: uuid.New(), Type: TypeBookingPaidV1, Payload: json.RawMessage(`{"reference":"REF1"}`)}
	if err := h.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gotType != TypeBookingPaidV1 || body["reference"] != "REF1" {
		t.Fatalf("unexpected delivery: type=%s body=%v", gotType, body)
	}

	entry.Payload = json.RawMessage(`{"reference":"FAIL"}`)
	if err := h.Handle(context.Background(), entry); err == nil {
		t.Fatal("expected error for non-2xx webhook response")
	}
}
