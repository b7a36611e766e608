package handler

import (
	"net/http"
	"time"

	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
	"github.com/livechat/internal/registry"
)

// RoomsHandler is the read-only REST view of the room queue, for dashboards
// that do not hold a websocket.
type RoomsHandler struct {
	rooms registry.RoomStore
}

func NewRoomsHandler(rooms registry.RoomStore) *RoomsHandler {
	return &RoomsHandler{rooms: rooms}
}

// List returns open rooms, most recent activity first. ?limit caps the result.
func (h *RoomsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	open, err := h.rooms.ListOpen(r.Context())
	if err != nil {
		logger.Errorf("rooms list: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	now := time.Now()
	out := make([]model.RoomSummary, 0, len(open))
	for _, room := range open {
		out = append(out, model.RoomSummary{
			ID:              room.ID,
			UserName:        room.UserName,
			LastMessage:     room.LastMessage,
			WaitTime:        registry.WaitLabel(room.CreatedAt, now),
			Active:          room.State == model.RoomActive,
			AssignedAgentID: room.AssignedAgentID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
