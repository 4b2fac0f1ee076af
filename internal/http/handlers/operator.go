package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/internal/loopguard"
	"github.com/attenda/clinic-assistant/internal/schedule"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

// OperatorHandler exposes the human-operator surface: resolving escalated
// conversations and managing committed appointments.
type OperatorHandler struct {
	states *loopguard.StateStore
	appts  *appointments.Service
	loc    *time.Location
	logger *logging.Logger
}

// NewOperatorHandler creates the operator handler.
func NewOperatorHandler(states *loopguard.StateStore, appts *appointments.Service, loc *time.Location, logger *logging.Logger) *OperatorHandler {
	if states == nil || appts == nil {
		panic("handlers: state store and appointment service required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorHandler{states: states, appts: appts, loc: loc, logger: logger.Component("operator")}
}

// HandleResolve processes POST /operator/conversations/{id}/resolve. It
// clears the escalation flag so automated replies resume.
func (h *OperatorHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	if err := h.states.Resolve(r.Context(), conversationID); err != nil {
		h.logger.Error("resolve failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not resolve conversation")
		return
	}

	h.logger.Info("conversation resolved", "conversation_id", conversationID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// HandleCancel processes POST /operator/appointments/{id}/cancel.
func (h *OperatorHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	if err := h.appts.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("cancel failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not cancel appointment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RescheduleRequest names the new interval for an appointment.
type RescheduleRequest struct {
	Date      string `json:"date"`       // YYYY-MM-DD
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`   // HH:MM
}

// HandleReschedule processes POST /operator/appointments/{id}/reschedule.
func (h *OperatorHandler) HandleReschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.StartTime, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD and start_time HH:MM")
		return
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.EndTime, h.loc)
	if err != nil || !end.After(start) {
		writeError(w, http.StatusBadRequest, "end_time must be HH:MM after start_time")
		return
	}

	appt, err := h.appts.Reschedule(r.Context(), id, schedule.Slot{Start: start, End: end})
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("reschedule failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not reschedule appointment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     string(appt.Status),
		"date":       appt.Date,
		"start_time": appt.StartTime,
		"end_time":   appt.EndTime,
	})
}
