package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/livechat/internal/event"
	"github.com/livechat/internal/model"
)

// fakeChannel is an in-memory event.Channel: outgoing events are recorded,
// inbound events are injected with emit.
type fakeChannel struct {
	mu     sync.Mutex
	sent   []event.Event
	events chan event.Event
	connID string
	once   sync.Once
}

func newFakeChannel(connID string) *fakeChannel {
	return &fakeChannel{
		connID: connID,
		events: make(chan event.Event, 16),
	}
}

func (f *fakeChannel) Send(_ context.Context, ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeChannel) Events() <-chan event.Event { return f.events }
func (f *fakeChannel) ConnectionID() string       { return f.connID }

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *fakeChannel) emit(ev event.Event) { f.events <- ev }

func (f *fakeChannel) sentOfType(t event.Type) []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Event
	for _, ev := range f.sent {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeChannel) countOfType(t event.Type) int {
	return len(f.sentOfType(t))
}

// fakeSink records everything a session pushes at the UI. Safe for use from
// the session's internal goroutines.
type fakeSink struct {
	mu       sync.Mutex
	msgs     []model.Message
	statuses []model.RoomStatus
	toasts   []string
	rooms    []model.RoomSummary
}

func (s *fakeSink) MessagesChanged(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = msgs
}

func (s *fakeSink) StatusChanged(status model.RoomStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *fakeSink) Toast(_ ToastLevel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = append(s.toasts, text)
}

func (s *fakeSink) RoomsChanged(rooms []model.RoomSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = rooms
}

func (s *fakeSink) messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *fakeSink) hasMessage(content string) bool {
	for _, m := range s.messages() {
		if m.Content == content {
			return true
		}
	}
	return false
}

func (s *fakeSink) toastCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.toasts)
}

func (s *fakeSink) hasToast(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tt := range s.toasts {
		if tt == text {
			return true
		}
	}
	return false
}

// echoOf rewraps an outgoing send_message event as the new_message broadcast
// the coordinator would fan back out.
func echoOf(t *testing.T, ev event.Event) event.Event {
	t.Helper()
	var m model.Message
	if err := ev.Decode(&m); err != nil {
		t.Fatalf("echoOf: %v", err)
	}
	return event.New(event.TypeNewMessage, m)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
