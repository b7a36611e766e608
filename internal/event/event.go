// Package event defines the wire contract between session clients and the
// coordinator: event names, typed payloads and the envelope carried over the
// websocket channel.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/livechat/internal/model"
)

type Type string

// Client -> coordinator.
const (
	TypeRegisterAgent     Type = "register_agent"
	TypeJoinRoom          Type = "join_room"
	TypeLeaveRoom         Type = "leave_room"
	TypeGetChatHistory    Type = "get_chat_history"
	TypeSendMessage       Type = "send_message"
	TypeRequestAgent      Type = "request_agent"
	TypeUpdateAgentStatus Type = "update_agent_status"
)

// Coordinator -> client.
const (
	TypeAvailableRooms    Type = "available_rooms"
	TypeNewMessage        Type = "new_message"
	TypeChatHistory       Type = "chat_history"
	TypeAgentJoined       Type = "agent_joined"
	TypeAgentLeft         Type = "agent_left"
	TypeNoAgentsAvailable Type = "no_agents_available"
	TypeRoomLeft          Type = "room_left"
	TypeStatusUpdated     Type = "status_updated"
	TypeAgentNotification Type = "agent_notification"
	TypeError             Type = "error"
)

// Channel lifecycle, synthesized by the transport rather than carried on the
// wire.
const (
	TypeConnect      Type = "connect"
	TypeDisconnect   Type = "disconnect"
	TypeConnectError Type = "connect_error"
)

// Event is the envelope exchanged over the channel. Payload shape depends on
// Type; delivery is at-most-once per attempt and ordering is not guaranteed
// across reconnects.
type Event struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds an event, panicking only on unmarshalable payloads (all payload
// types here are plain structs).
func New(t Type, payload any) Event {
	if payload == nil {
		return Event{Type: t}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("event: marshal %s payload: %v", t, err))
	}
	return Event{Type: t, Payload: raw}
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("event: decode %s: %w", e.Type, err)
	}
	return nil
}

// --- Outbound payloads (client -> coordinator) ---

type RegisterAgentPayload struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

type JoinRoomPayload struct {
	RoomID  string `json:"roomId"`
	AgentID string `json:"agentId"`
}

type LeaveRoomPayload struct {
	RoomID    string            `json:"roomId"`
	AgentID   string            `json:"agentId"`
	Reason    model.LeaveReason `json:"reason"`
	AgentName string            `json:"agentName,omitempty"`
}

type GetChatHistoryPayload struct {
	RoomID string `json:"roomId"`
}

type RequestAgentPayload struct {
	RoomID      string          `json:"roomId"`
	UserID      string          `json:"userId"`
	UserName    string          `json:"userName"`
	ChatHistory []model.Message `json:"chatHistory,omitempty"`
}

type UpdateAgentStatusPayload struct {
	AgentID string            `json:"agentId"`
	Status  model.AgentStatus `json:"status"`
}

// --- Inbound payloads (coordinator -> client) ---

type AgentJoinedPayload struct {
	AgentName string `json:"agentName"`
}

type RoomLeftPayload struct {
	Success        bool                `json:"success"`
	RoomID         string              `json:"roomId,omitempty"`
	Error          string              `json:"error,omitempty"`
	AvailableRooms []model.RoomSummary `json:"availableRooms,omitempty"`
}

type StatusUpdatedPayload struct {
	Success bool              `json:"success"`
	Status  model.AgentStatus `json:"status,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type AgentNotificationPayload struct {
	Kind    string `json:"type"`
	Message string `json:"message"`
	RoomID  string `json:"roomId,omitempty"`
}

// Notification kinds carried in AgentNotificationPayload.Kind.
const (
	NotifyNewMessage   = "new_message"
	NotifyNewRoom      = "new_room"
	NotifyAgentRequest = "agent_request"
)

type ErrorPayload struct {
	Message string `json:"message"`
}
