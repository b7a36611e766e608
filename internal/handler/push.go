package handler

import (
	"encoding/json"
	"net/http"

	"github.com/livechat/internal/push"
	"github.com/livechat/internal/storage"
)

// PushHandler manages agent Web Push subscriptions.
type PushHandler struct {
	presence storage.PresenceStore
	keys     *push.VAPIDKeys
}

func NewPushHandler(presence storage.PresenceStore, keys *push.VAPIDKeys) *PushHandler {
	return &PushHandler{presence: presence, keys: keys}
}

// SubscribeRequest carries the subscription from PushManager.getSubscription().
type SubscribeRequest struct {
	AgentID      string            `json:"agentId"`
	Subscription push.Subscription `json:"subscription"`
}

// Subscribe stores the push subscription for an agent.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agentId required")
		return
	}
	if req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	if err := h.presence.SaveSubscription(r.Context(), req.AgentID, req.Subscription); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribeRequest removes a subscription by endpoint.
type UnsubscribeRequest struct {
	AgentID  string `json:"agentId"`
	Endpoint string `json:"endpoint"`
}

// Unsubscribe drops the subscription.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.AgentID == "" || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "agentId and endpoint required")
		return
	}
	if err := h.presence.RemoveSubscription(r.Context(), req.AgentID, req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VAPIDPublicKey hands the public key to the service worker.
func (h *PushHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil || h.keys.PublicKey == "" {
		writeError(w, http.StatusNotFound, "push disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.keys.PublicKey})
}
