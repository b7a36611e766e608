package session

import (
	"context"
	"sync"
	"time"

	"github.com/livechat/internal/agentapi"
	"github.com/livechat/internal/event"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
	"github.com/livechat/internal/notify"
)

// AgentSink receives UI-facing output from an agent session.
type AgentSink interface {
	Sink
	RoomsChanged(rooms []model.RoomSummary)
}

// AgentConfig configures an agent console session.
type AgentConfig struct {
	Channel    event.Channel
	Status     *agentapi.Client
	Dispatcher *notify.Dispatcher
	Sink       AgentSink
	AgentName  string

	InactivityTimeout time.Duration
	Now               func() time.Time
}

// Agent is the agent-side session: room list, one active room at a time, the
// availability toggle and the per-room inactivity timer.
type Agent struct {
	mu  sync.Mutex
	cfg AgentConfig

	ch     event.Channel
	rec    *Reconciler
	rooms  []model.RoomSummary
	unread map[string]bool

	activeRoom *model.RoomSummary
	timer      *InactivityTimer

	available bool
	closed    bool

	wg sync.WaitGroup
}

// NewAgent creates an agent session over the given channel.
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = InactivityTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Agent{
		cfg:       cfg,
		ch:        cfg.Channel,
		rec:       NewReconciler(),
		unread:    make(map[string]bool),
		available: true,
	}
}

// Available reports the availability toggle position (online vs busy).
func (a *Agent) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available
}

// ActiveRoom returns the currently joined room, if any.
func (a *Agent) ActiveRoom() (model.RoomSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeRoom == nil {
		return model.RoomSummary{}, false
	}
	return *a.activeRoom, true
}

// Rooms returns the latest available-rooms snapshot.
func (a *Agent) Rooms() []model.RoomSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.RoomSummary, len(a.rooms))
	copy(out, a.rooms)
	return out
}

// Messages returns the active room's rendered message list.
func (a *Agent) Messages() []model.Message {
	return a.rec.Messages()
}

// Open starts consuming channel events.
func (a *Agent) Open() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for ev := range a.ch.Events() {
			a.handleEvent(ev)
		}
	}()
}

// Close releases the channel and the timer without the logout round-trip.
func (a *Agent) Close() {
	a.mu.Lock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	if err := a.ch.Close(); err != nil {
		logger.Errorf("agent session close: %v", err)
	}
	a.wg.Wait()
}

// JoinRoom claims a waiting room and requests its history.
func (a *Agent) JoinRoom(room model.RoomSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	room.Unread = false
	delete(a.unread, room.ID)
	for i := range a.rooms {
		if a.rooms[i].ID == room.ID {
			a.rooms[i].Unread = false
		}
	}
	a.activeRoom = &room
	a.rec.Reset()
	a.send(event.New(event.TypeJoinRoom, event.JoinRoomPayload{
		RoomID:  room.ID,
		AgentID: a.ch.ConnectionID(),
	}))
	a.send(event.New(event.TypeGetChatHistory, event.GetChatHistoryPayload{RoomID: room.ID}))
	a.touchLocked()
}

// SendMessage sends an agent utterance to the active room. The local copy is
// inserted optimistically; the coordinator echo is suppressed by sender id.
func (a *Agent) SendMessage(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeRoom == nil || a.closed {
		return
	}
	msg := model.Message{
		Content:    text,
		Role:       model.RoleAgent,
		RoomID:     a.activeRoom.ID,
		SenderID:   a.ch.ConnectionID(),
		SenderName: a.cfg.AgentName,
		Timestamp:  a.cfg.Now(),
	}
	a.rec.Append(msg)
	a.notifyMessages()
	a.send(event.New(event.TypeSendMessage, msg))
	a.touchLocked()
}

// LeaveRoom leaves the active room. Local state is cleared first; a failed
// room_left confirmation later surfaces as a toast without rollback.
func (a *Agent) LeaveRoom(reason model.LeaveReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaveRoomLocked(reason)
}

func (a *Agent) leaveRoomLocked(reason model.LeaveReason) {
	if a.activeRoom == nil {
		return
	}
	room := *a.activeRoom
	a.activeRoom = nil
	a.rec.Reset()
	a.notifyMessages()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	a.send(event.New(event.TypeLeaveRoom, event.LeaveRoomPayload{
		RoomID:    room.ID,
		AgentID:   a.ch.ConnectionID(),
		Reason:    reason,
		AgentName: a.cfg.AgentName,
	}))

	userName := room.UserName
	if userName == "" {
		userName = "Customer"
	}
	a.cfg.Sink.Toast(ToastInfo, "Left chat with "+userName)
}

// ToggleAvailability flips online <-> busy, write-through: the collaborator
// call must succeed before local presence changes or the toggle broadcast
// fires. Never optimistic, unlike message sending.
func (a *Agent) ToggleAvailability(ctx context.Context) {
	a.mu.Lock()
	next := model.AgentBusy
	if !a.available {
		next = model.AgentOnline
	}
	a.mu.Unlock()

	result, err := a.cfg.Status.UpdateStatus(ctx, next)
	if err != nil {
		logger.Errorf("agent: update status: %v", err)
		a.cfg.Sink.Toast(ToastError, "An error occurred while updating status")
		return
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Failed to update status. Please try again."
		}
		a.cfg.Sink.Toast(ToastError, msg)
		return
	}

	a.mu.Lock()
	a.available = next == model.AgentOnline
	a.send(event.New(event.TypeUpdateAgentStatus, event.UpdateAgentStatusPayload{
		AgentID: a.ch.ConnectionID(),
		Status:  next,
	}))
	a.mu.Unlock()
	a.cfg.Sink.Toast(ToastSuccess, "Status set to "+string(next)+"!")
}

// Logout leaves any active room with reason agent_logout, marks the agent
// offline and tears the session down.
func (a *Agent) Logout(ctx context.Context) {
	a.mu.Lock()
	if a.activeRoom != nil {
		a.leaveRoomLocked(model.LeaveAgentLogout)
	}
	a.mu.Unlock()

	if result, err := a.cfg.Status.UpdateStatus(ctx, model.AgentOffline); err != nil {
		logger.Errorf("agent: logout status: %v", err)
	} else if !result.Success {
		logger.Errorf("agent: logout status: %s", result.Error)
	}
	a.Close()
}

func (a *Agent) handleEvent(ev event.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Type {
	case event.TypeConnect:
		a.send(event.New(event.TypeRegisterAgent, event.RegisterAgentPayload{
			AgentID:   a.ch.ConnectionID(),
			AgentName: a.cfg.AgentName,
		}))

	case event.TypeDisconnect, event.TypeConnectError:
		// Presence degrades to offline and the timer is cancelled; room
		// state survives and history is re-fetched on reconnect.
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}

	case event.TypeAvailableRooms:
		var rooms []model.RoomSummary
		if err := ev.Decode(&rooms); err != nil {
			logger.Errorf("agent: %v", err)
			return
		}
		if len(rooms) > len(a.rooms) {
			a.alert(notify.ClassRoomAvailable)
		}
		a.rooms = a.applyUnreadLocked(rooms)
		a.cfg.Sink.RoomsChanged(a.rooms)

	case event.TypeNewMessage:
		var m model.Message
		if err := ev.Decode(&m); err != nil {
			logger.Errorf("agent: %v", err)
			return
		}
		if a.activeRoom == nil || m.RoomID != a.activeRoom.ID {
			a.markUnreadLocked(m.RoomID)
			return
		}
		if a.rec.Deliver(m, a.localContext()) {
			a.notifyMessages()
			a.alert(notify.ClassNewMessage)
			a.touchLocked()
		}

	case event.TypeChatHistory:
		var history []model.Message
		if err := ev.Decode(&history); err != nil {
			logger.Errorf("agent: %v", err)
			return
		}
		a.rec.Replace(history, a.localContext())
		a.notifyMessages()
		if len(history) > 0 {
			a.touchLocked()
		}

	case event.TypeRoomLeft:
		var p event.RoomLeftPayload
		if err := ev.Decode(&p); err != nil {
			logger.Errorf("agent: %v", err)
			return
		}
		if !p.Success {
			msg := p.Error
			if msg == "" {
				msg = "Failed to leave room"
			}
			a.cfg.Sink.Toast(ToastError, msg)
			return
		}
		if p.AvailableRooms != nil {
			a.rooms = a.applyUnreadLocked(p.AvailableRooms)
			a.cfg.Sink.RoomsChanged(a.rooms)
		}

	case event.TypeStatusUpdated:
		var p event.StatusUpdatedPayload
		if err := ev.Decode(&p); err != nil {
			logger.Errorf("agent: %v", err)
			return
		}
		if p.Success {
			a.cfg.Sink.Toast(ToastSuccess, "Status updated to "+string(p.Status)+"!")
		} else {
			msg := p.Error
			if msg == "" {
				msg = "Failed to update status on server"
			}
			a.cfg.Sink.Toast(ToastError, msg)
		}

	case event.TypeAgentNotification:
		var p event.AgentNotificationPayload
		if err := ev.Decode(&p); err != nil {
			logger.Errorf("agent: %v", err)
			return
		}
		a.alert(notify.ClassAgentRequest)
		a.cfg.Sink.Toast(ToastInfo, p.Message)
	}
}

func (a *Agent) localContext() LocalContext {
	return LocalContext{ConnID: a.ch.ConnectionID(), AgentName: a.cfg.AgentName}
}

// applyUnreadLocked carries unread marks over to a fresh room-list snapshot
// and drops marks for rooms that are gone.
func (a *Agent) applyUnreadLocked(rooms []model.RoomSummary) []model.RoomSummary {
	listed := make(map[string]bool, len(rooms))
	for i := range rooms {
		listed[rooms[i].ID] = true
		rooms[i].Unread = a.unread[rooms[i].ID]
	}
	for id := range a.unread {
		if !listed[id] {
			delete(a.unread, id)
		}
	}
	return rooms
}

// markUnreadLocked flags a listed room the agent is not currently viewing.
func (a *Agent) markUnreadLocked(roomID string) {
	if roomID == "" || a.unread[roomID] {
		return
	}
	for i := range a.rooms {
		if a.rooms[i].ID == roomID {
			a.unread[roomID] = true
			a.rooms[i].Unread = true
			a.cfg.Sink.RoomsChanged(a.rooms)
			return
		}
	}
}

func (a *Agent) alert(class notify.EventClass) {
	if a.cfg.Dispatcher != nil {
		a.cfg.Dispatcher.Alert(class)
	}
}

func (a *Agent) onIdleTimeout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.activeRoom == nil {
		return
	}
	userName := a.activeRoom.UserName
	if userName == "" {
		userName = "Customer"
	}
	a.leaveRoomLocked(model.LeaveInactivityTimeout)
	a.cfg.Sink.Toast(ToastInfo, "The chat with "+userName+" was automatically closed due to 10 minutes of inactivity.")
}

// touchLocked resets the active room's inactivity timer (cancel-and-recreate).
func (a *Agent) touchLocked() {
	if a.closed || a.activeRoom == nil {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = NewInactivityTimer(a.cfg.InactivityTimeout, a.onIdleTimeout)
}

func (a *Agent) notifyMessages() {
	a.cfg.Sink.MessagesChanged(a.rec.Messages())
}

func (a *Agent) send(ev event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.ch.Send(ctx, ev); err != nil {
		logger.Errorf("agent: send %s: %v", ev.Type, err)
	}
}
