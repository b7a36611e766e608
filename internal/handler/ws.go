package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/registry"
)

type WSHandler struct {
	hub            *registry.Hub
	allowedOrigins string
}

// NewWSHandler creates the websocket upgrade handler. allowedOrigins follows
// the CORS convention: comma-separated list or "*".
func NewWSHandler(hub *registry.Hub, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection and hands it to the hub. The client chooses
// its connection id (fresh per attempt); absent one, the server assigns it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	connID := strings.TrimSpace(r.URL.Query().Get("conn_id"))
	if connID == "" {
		connID = uuid.NewString()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := registry.NewClient(h.hub, conn, connID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
