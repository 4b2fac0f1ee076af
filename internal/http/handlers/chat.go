package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/attenda/clinic-assistant/internal/dialogue"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

// ChatWebhookHandler receives inbound chat messages and runs them through the
// turn pipeline.
type ChatWebhookHandler struct {
	turns  *dialogue.TurnService
	logger *logging.Logger
}

// NewChatWebhookHandler creates the inbound chat handler.
func NewChatWebhookHandler(turns *dialogue.TurnService, logger *logging.Logger) *ChatWebhookHandler {
	if turns == nil {
		panic("handlers: turn service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatWebhookHandler{turns: turns, logger: logger.Component("chat_webhook")}
}

// ChatRequest is one inbound message.
type ChatRequest struct {
	SubjectID string `json:"subject_id"`
	Text      string `json:"text"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Reply     string `json:"reply"`
	Escalated bool   `json:"escalated"`
}

// HandleInbound processes POST /webhooks/chat.
func (h *ChatWebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if req.SubjectID == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "subject_id and text are required")
		return
	}

	result, err := h.turns.HandleTurn(r.Context(), req.SubjectID, req.Text)
	if err != nil {
		h.logger.Error("turn failed", "subject_id", req.SubjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not process message")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Reply: result.Reply, Escalated: result.Escalated})
}
