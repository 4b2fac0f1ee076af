package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/attenda/clinic-assistant/internal/schedule"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

// AvailabilityHandler exposes read-only slot listings.
type AvailabilityHandler struct {
	engine *schedule.Engine
	loc    *time.Location
	logger *logging.Logger
}

// NewAvailabilityHandler creates the availability handler. The location
// anchors date-only query parameters in clinic time.
func NewAvailabilityHandler(engine *schedule.Engine, loc *time.Location, logger *logging.Logger) *AvailabilityHandler {
	if engine == nil {
		panic("handlers: availability engine required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{engine: engine, loc: loc, logger: logger.Component("availability")}
}

// SlotResponse is one bookable interval.
type SlotResponse struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// HandleList processes GET /availability.
func (h *AvailabilityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	resourceID := r.URL.Query().Get("resource_id")
	if resourceID == "" {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}
	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateParam, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	serviceType := r.URL.Query().Get("service")

	slots, err := h.engine.ComputeAvailableSlots(r.Context(), resourceID, date, serviceType)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrResourceNotFound):
			writeError(w, http.StatusNotFound, "unknown resource")
		case errors.Is(err, schedule.ErrAvailabilityUnavailable):
			writeError(w, http.StatusServiceUnavailable, "calendar temporarily unavailable")
		default:
			h.logger.Error("availability lookup failed", "resource_id", resourceID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not compute availability")
		}
		return
	}

	out := make([]SlotResponse, 0, len(slots))
	for _, slot := range slots {
		out = append(out, SlotResponse{
			Date:      slot.Date(),
			StartTime: slot.StartTime(),
			EndTime:   slot.EndTime(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}
