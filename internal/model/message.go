package model

import "time"

// Role identifies who authored a chat message. It determines attribution and
// rendering; a message must never reach display with an empty role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAgent     Role = "agent"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SenderSystem is the reserved sender id for coordinator-authored messages.
const SenderSystem = "system"

// Message is a single chat utterance in a support room.
type Message struct {
	ID         int64     `json:"id,omitempty"`
	RoomID     string    `json:"roomId,omitempty"`
	Content    string    `json:"content"`
	Role       Role      `json:"role,omitempty"`
	SenderID   string    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`

	// Typing marks an in-progress AI response placeholder. Transient: never
	// persisted and replaced in place once the response (or an error) lands.
	Typing bool `json:"typing,omitempty"`
}

// Key is the reconciliation identity of a message: two messages with equal
// content, role and timestamp are considered the same utterance. Distinct
// messages with identical content and role inside the same millisecond
// collapse to one; that trade-off is deliberate (no sequence number on the
// wire).
type Key struct {
	Content   string
	Role      Role
	Timestamp int64 // unix milliseconds
}

// IdentityKey returns the deduplication key for m.
func (m *Message) IdentityKey() Key {
	return Key{Content: m.Content, Role: m.Role, Timestamp: m.Timestamp.UnixMilli()}
}
