package model

import "time"

// AgentStatus is an agent's declared availability, independent of any room.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// Valid reports whether s is one of the three known statuses.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentOnline, AgentBusy, AgentOffline:
		return true
	}
	return false
}

// Agent is a support agent record.
type Agent struct {
	ID         string      `json:"id"`
	Name       string      `json:"agentName"`
	Status     AgentStatus `json:"status"`
	LastActive time.Time   `json:"lastActive"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// AgentPresence is the in-memory availability entry kept by the registry and
// the presence store. Mutated only by the agent's own toggle round-trip or by
// server-driven broadcasts.
type AgentPresence struct {
	AgentID   string      `json:"agentId"`
	AgentName string      `json:"agentName"`
	Status    AgentStatus `json:"status"`
}
