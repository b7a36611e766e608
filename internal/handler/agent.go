package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
	"github.com/livechat/internal/storage"
)

// AgentStatusHandler is the REST side of the availability toggle. Consoles
// authenticate with a per-agent bearer token; the toggle is write-through, so
// a failure here must leave the console's local state untouched.
type AgentStatusHandler struct {
	presence storage.PresenceStore
	// tokens maps bearer token to agent id.
	tokens map[string]string
}

func NewAgentStatusHandler(presence storage.PresenceStore, tokens map[string]string) *AgentStatusHandler {
	return &AgentStatusHandler{presence: presence, tokens: tokens}
}

type statusRequest struct {
	Status model.AgentStatus `json:"status"`
}

type statusResponse struct {
	Success bool              `json:"success"`
	Status  model.AgentStatus `json:"status,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (h *AgentStatusHandler) agentFromToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return h.tokens[strings.TrimSpace(token)]
}

// UpdateStatus persists the agent's declared availability.
func (h *AgentStatusHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	agentID := h.agentFromToken(r)
	if agentID == "" {
		writeJSON(w, http.StatusUnauthorized, statusResponse{Success: false, Error: "unauthorized"})
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Error: "invalid body"})
		return
	}
	if !req.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Error: "invalid status"})
		return
	}
	if err := h.presence.SetAgentStatus(r.Context(), agentID, req.Status); err != nil {
		logger.Errorf("agent status %s: %v", agentID, err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Success: false, Error: "failed to update status"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Status: req.Status})
}

// GetStatus returns the agent's current availability.
func (h *AgentStatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	agentID := h.agentFromToken(r)
	if agentID == "" {
		writeJSON(w, http.StatusUnauthorized, statusResponse{Success: false, Error: "unauthorized"})
		return
	}
	status, err := h.presence.AgentStatus(r.Context(), agentID)
	if err != nil {
		logger.Errorf("agent status get %s: %v", agentID, err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Success: false, Error: "failed to read status"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Status: status})
}
