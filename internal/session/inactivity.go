package session

import (
	"sync"
	"time"
)

// InactivityTimeout is how long a room may sit inert before it is auto-closed.
const InactivityTimeout = 10 * time.Minute

// InactivityTimer fires once after a fixed period of room inertness. Reset
// cancels and recreates rather than extends; there is exactly one timer per
// open room, and a stopped timer is never re-armed by a late Reset.
type InactivityTimer struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	t       *time.Timer
	stopped bool
}

// NewInactivityTimer creates an armed timer. fn runs on its own goroutine
// when the timeout elapses without a Reset.
func NewInactivityTimer(d time.Duration, fn func()) *InactivityTimer {
	it := &InactivityTimer{d: d, fn: fn}
	it.t = time.AfterFunc(d, it.fire)
	return it
}

func (it *InactivityTimer) fire() {
	it.mu.Lock()
	if it.stopped {
		it.mu.Unlock()
		return
	}
	it.stopped = true
	fn := it.fn
	it.mu.Unlock()
	fn()
}

// Reset restarts the countdown. No-op after Stop or after the timer fired.
func (it *InactivityTimer) Reset() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.stopped {
		return
	}
	it.t.Stop()
	it.t = time.AfterFunc(it.d, it.fire)
}

// Stop cancels the timer permanently. Idempotent.
func (it *InactivityTimer) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.stopped {
		return
	}
	it.stopped = true
	it.t.Stop()
}
