package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"

	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/internal/http/handlers"
	"github.com/attenda/clinic-assistant/internal/loopguard"
	"github.com/attenda/clinic-assistant/internal/schedule"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)

	hours := schedule.NewStaticHoursSource(map[string]schedule.WeeklyHours{})
	engine := schedule.NewEngine(hours, stubBusySource{}, nil)

	return New(&Config{
		Availability: handlers.NewAvailabilityHandler(engine, time.UTC, nil),
		Operator: handlers.NewOperatorHandler(
			loopguard.NewStateStore(client),
			appointments.NewService(appointments.NewRepositoryWithQuerier(mock), nil, nil, nil),
			time.UTC, nil,
		),
		OperatorJWTSecret: "test-secret",
	})
}

type stubBusySource struct{}

func (stubBusySource) BusyIntervals(_ context.Context, _ string, _, _ time.Time) ([]schedule.BusyInterval, error) {
	return nil, nil
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestOperatorRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	paths := []string{
		"/operator/conversations/x/resolve",
		"/operator/appointments/x/cancel",
		"/operator/appointments/x/reschedule",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want 401", path, rec.Code)
		}
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
