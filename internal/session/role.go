// Package session implements the per-participant live-support core: the room
// state machine, the message stream reconciler, and the presence/inactivity
// controller. Everything here runs against the event.Channel abstraction and
// is exercised with a fake channel in tests.
package session

import "github.com/livechat/internal/model"

// LocalContext is what role inference knows about the observing connection.
type LocalContext struct {
	// ConnID is the local channel connection id.
	ConnID string
	// AgentName is the configured display name when the local participant is
	// an agent; empty on the customer side.
	AgentName string
}

// InferRole resolves the role of a message that arrived without one. A
// message must never render with an ambiguous role: system sender wins, then
// the local agent identity (by connection id or display name), else user.
func InferRole(m model.Message, lc LocalContext) model.Role {
	if m.Role != "" {
		return m.Role
	}
	if m.SenderID == model.SenderSystem {
		return model.RoleSystem
	}
	if m.SenderID != "" && m.SenderID == lc.ConnID {
		return model.RoleAgent
	}
	if m.SenderName != "" && lc.AgentName != "" && m.SenderName == lc.AgentName {
		return model.RoleAgent
	}
	return model.RoleUser
}
