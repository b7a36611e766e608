package session

import (
	"sync"

	"github.com/livechat/internal/model"
)

// InsertionStrategy names how a locally-composed outgoing message enters the
// rendered list. Selected by the current room status, never inline.
type InsertionStrategy int

const (
	// InsertOptimistic appends the message locally before transmission; the
	// later channel echo is suppressed as a self-echo.
	InsertOptimistic InsertionStrategy = iota
	// InsertDeferred holds the message until the channel echoes it back.
	// Used while an agent is connected: the coordinator echoes to everyone in
	// the room, and an optimistic copy plus the echo would render twice.
	InsertDeferred
)

// StrategyFor selects the insertion strategy for the given room status.
func StrategyFor(status model.RoomStatus) InsertionStrategy {
	if status == model.StatusAgentConnected {
		return InsertDeferred
	}
	return InsertOptimistic
}

// Reconciler merges locally-originated messages with those echoed from the
// event channel into one ordered, duplicate-free list per room. It is
// idempotent under re-delivery and tolerant of out-of-order arrival: identity
// is (content, role, timestamp), not position.
type Reconciler struct {
	mu       sync.Mutex
	msgs     []model.Message
	seen     map[model.Key]struct{}
	deferred map[model.Key]struct{}
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		seen:     make(map[model.Key]struct{}),
		deferred: make(map[model.Key]struct{}),
	}
}

// Append inserts a message produced locally (optimistic strategy) or by the
// session itself (system and assistant messages). The key is recorded so a
// later channel echo of the same message is dropped.
func (r *Reconciler) Append(m model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	r.seen[m.IdentityKey()] = struct{}{}
}

// AppendTyping appends an assistant placeholder with Typing set. Placeholders
// carry no identity key: they are replaced, never reconciled.
func (r *Reconciler) AppendTyping() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, model.Message{Role: model.RoleAssistant, Typing: true})
}

// ResolveTyping replaces the trailing typing placeholder with the final
// message and reports whether a placeholder was present.
func (r *Reconciler) ResolveTyping(final model.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Typing && r.msgs[i].Role == model.RoleAssistant {
			final.Typing = false
			r.msgs[i] = final
			r.seen[final.IdentityKey()] = struct{}{}
			return true
		}
	}
	return false
}

// DropTyping removes the trailing typing placeholder, if any (stale AI
// result discarded after the room moved on).
func (r *Reconciler) DropTyping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Typing && r.msgs[i].Role == model.RoleAssistant {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// MarkDeferred records an outgoing message sent under the deferred strategy:
// its first echo is accepted even though the sender id matches ours.
func (r *Reconciler) MarkDeferred(m model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deferred[m.IdentityKey()] = struct{}{}
}

// Deliver processes an inbound message from the channel and reports whether
// it was added to the list. Drops duplicates by identity key, suppresses
// self-echoes (except the first echo of a deferred send), and infers a
// missing role before the message can reach display.
func (r *Reconciler) Deliver(m model.Message, lc LocalContext) bool {
	m.Role = InferRole(m, lc)
	key := m.IdentityKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[key]; dup {
		return false
	}
	if m.SenderID != "" && m.SenderID == lc.ConnID {
		if _, ok := r.deferred[key]; !ok {
			return false
		}
		delete(r.deferred, key)
	}
	r.msgs = append(r.msgs, m)
	r.seen[key] = struct{}{}
	return true
}

// Replace rebuilds the list from a history snapshot (after a reconnect or a
// room join), inferring roles and deduplicating as it goes.
func (r *Reconciler) Replace(history []model.Message, lc LocalContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = r.msgs[:0]
	r.seen = make(map[model.Key]struct{}, len(history))
	for _, m := range history {
		m.Role = InferRole(m, lc)
		key := m.IdentityKey()
		if _, dup := r.seen[key]; dup {
			continue
		}
		r.msgs = append(r.msgs, m)
		r.seen[key] = struct{}{}
	}
}

// LastUserMessage returns the most recent user message, if any.
func (r *Reconciler) LastUserMessage() (model.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Role == model.RoleUser {
			return r.msgs[i], true
		}
	}
	return model.Message{}, false
}

// LastIsUser reports whether the newest rendered message is from the user,
// i.e. it is still unanswered.
func (r *Reconciler) LastIsUser() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.msgs)
	return n > 0 && r.msgs[n-1].Role == model.RoleUser
}

// UserMessages returns the user utterances in order (AI conversation input).
func (r *Reconciler) UserMessages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, m := range r.msgs {
		if m.Role == model.RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// Messages returns a copy of the current rendered list.
func (r *Reconciler) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Reset clears the list (agent leaving a room, terminal close).
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
	r.seen = make(map[model.Key]struct{})
	r.deferred = make(map[model.Key]struct{})
}
