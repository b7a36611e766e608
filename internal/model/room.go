package model

import "time"

// RoomStatus is the participant-side view of a support conversation.
type RoomStatus string

const (
	// StatusAIOnly: the AI assistant handles the conversation.
	StatusAIOnly RoomStatus = "ai_only"
	// StatusAwaitingAgent: an agent has been requested, none connected yet.
	StatusAwaitingAgent RoomStatus = "awaiting_agent"
	// StatusAgentConnected: a human agent is attached to the room.
	StatusAgentConnected RoomStatus = "agent_connected"
	// StatusClosed is terminal; the room and its timer are torn down.
	StatusClosed RoomStatus = "closed"
)

// LeaveReason tags why a room was closed.
type LeaveReason string

const (
	LeaveManualExit        LeaveReason = "manual_exit"
	LeaveInactivityTimeout LeaveReason = "inactivity_timeout"
	LeaveAgentLogout       LeaveReason = "agent_logout"
)

// RoomState is the coordinator-side lifecycle of a room record.
type RoomState string

const (
	RoomWaiting  RoomState = "waiting"
	RoomActive   RoomState = "active"
	RoomInactive RoomState = "inactive"
	RoomClosed   RoomState = "closed"
)

// Room is one customer support conversation as stored by the coordinator.
type Room struct {
	ID              string    `json:"id"`
	UserName        string    `json:"userName"`
	UserSocketID    string    `json:"-"`
	State           RoomState `json:"status"`
	AssignedAgentID string    `json:"assignedAgentId,omitempty"`
	LastMessage     string    `json:"lastMessage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
}

// RoomSummary is the sidebar entry broadcast to agents.
type RoomSummary struct {
	ID              string `json:"id"`
	UserName        string `json:"userName"`
	LastMessage     string `json:"lastMessage,omitempty"`
	WaitTime        string `json:"waitTime"`
	Active          bool   `json:"active"`
	Unread          bool   `json:"unread"`
	AssignedAgentID string `json:"assignedAgentId,omitempty"`
}
