// Package notify decides whether and how loudly to play an alert for a
// support event. Playback is a best-effort side channel: it never blocks and
// playback errors are swallowed.
package notify

import (
	"github.com/livechat/internal/logger"
)

// Sound is a fixed enum of alert sounds.
type Sound string

const (
	SoundDefault Sound = "default"
	SoundChime   Sound = "chime"
	SoundBell    Sound = "bell"
)

// EventClass is what kind of event is asking for an alert.
type EventClass string

const (
	ClassNewMessage    EventClass = "new_message"
	ClassRoomAvailable EventClass = "new_room"
	ClassAgentRequest  EventClass = "agent_request"
)

// Player renders an alert sound at a volume in [0,1]. Implementations live at
// the edges (terminal bell, OS audio); asset management is out of scope here.
type Player interface {
	Play(sound Sound, volume float64) error
}

// Dispatcher applies the user's notification preferences to alert requests.
type Dispatcher struct {
	prefs  Preferences
	player Player
}

// NewDispatcher creates a dispatcher. A nil player disables playback without
// disabling the decision logic.
func NewDispatcher(prefs Preferences, player Player) *Dispatcher {
	return &Dispatcher{prefs: prefs.normalized(), player: player}
}

// SetPreferences replaces the active preferences (after a settings save).
func (d *Dispatcher) SetPreferences(prefs Preferences) {
	d.prefs = prefs.normalized()
}

// Preferences returns the active preferences.
func (d *Dispatcher) Preferences() Preferences {
	return d.prefs
}

// Alert plays the configured sound for the event class. Disabled preferences
// make it a no-op; playback failures (autoplay restrictions, missing audio
// device) are logged and never surfaced as user-facing failures.
func (d *Dispatcher) Alert(class EventClass) {
	if !d.prefs.Enabled || d.player == nil {
		return
	}
	if err := d.player.Play(d.prefs.Sound, float64(d.prefs.Volume)/100); err != nil {
		logger.Errorf("notify: play %s for %s: %v", d.prefs.Sound, class, err)
	}
}
