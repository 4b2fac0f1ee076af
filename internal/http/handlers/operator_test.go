package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"

	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/internal/loopguard"
)

type okPublisher struct{}

func (okPublisher) PublishEvent(context.Context, *appointments.Appointment) (string, error) {
	return "evt_123", nil
}

func newOperatorFixture(t *testing.T) (pgxmock.PgxPoolIface, *loopguard.StateStore, http.Handler) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	states := loopguard.NewStateStore(client)

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	repo := appointments.NewRepositoryWithQuerier(mock)
	svc := appointments.NewService(repo, okPublisher{}, nil, nil)

	h := NewOperatorHandler(states, svc, time.UTC, nil)
	r := chi.NewRouter()
	r.Post("/operator/conversations/{id}/resolve", h.HandleResolve)
	r.Post("/operator/appointments/{id}/cancel", h.HandleCancel)
	r.Post("/operator/appointments/{id}/reschedule", h.HandleReschedule)
	return mock, states, r
}

func TestResolveClearsEscalation(t *testing.T) {
	_, states, router := newOperatorFixture(t)
	ctx := context.Background()

	if err := states.Save(ctx, &loopguard.State{
		ConversationID: "+5511999990000",
		Escalated:      true,
	}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/operator/conversations/+5511999990000/resolve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	state, err := states.Load(ctx, "+5511999990000")
	if err != nil {
		t.Fatal(err)
	}
	if state.Escalated {
		t.Fatal("escalation flag must be cleared")
	}
}

func TestCancelAppointment(t *testing.T) {
	mock, _, router := newOperatorFixture(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	req := httptest.NewRequest(http.MethodPost, "/operator/appointments/"+id.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCancelUnknownAppointmentIs404(t *testing.T) {
	mock, _, router := newOperatorFixture(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	req := httptest.NewRequest(http.MethodPost, "/operator/appointments/"+id.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelRejectsMalformedID(t *testing.T) {
	_, _, router := newOperatorFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/operator/appointments/not-a-uuid/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRescheduleAppointment(t *testing.T) {
	mock, _, router := newOperatorFixture(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "subject_id", "resource_id", "service_type",
			"date", "start_time", "end_time", "status", "details",
			"external_calendar_ref", "created_at", "updated_at",
		}).AddRow(
			id, "+5511999990000", "dr-lima", "Consultation",
			"2026-03-09", "09:00", "09:30", "rescheduled", []byte(`{}`),
			nil, now, now,
		))
	// Best-effort republish records the new external ref.
	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	body := `{"date": "2026-03-09", "start_time": "09:00", "end_time": "09:30"}`
	req := httptest.NewRequest(http.MethodPost, "/operator/appointments/"+id.String()+"/reschedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "rescheduled") {
		t.Fatalf("body = %s, want rescheduled status", rec.Body.String())
	}
}

func TestRescheduleRejectsBadInterval(t *testing.T) {
	_, _, router := newOperatorFixture(t)
	id := uuid.New()

	body := `{"date": "2026-03-09", "start_time": "10:00", "end_time": "09:30"}`
	req := httptest.NewRequest(http.MethodPost, "/operator/appointments/"+id.String()+"/reschedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
