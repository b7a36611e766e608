// Package registry is the coordinator: it owns the websocket connections,
// matches customers asking for a human with registered agents, persists every
// transcript, and sweeps idle rooms.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/livechat/internal/event"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
	"github.com/livechat/internal/push"
	"github.com/livechat/internal/repository"
	"github.com/livechat/internal/storage"
)

const (
	// roomIdleTimeout is the server-side counterpart of the client timer.
	roomIdleTimeout = 10 * time.Minute
	// customerReconnectGrace keeps a room open after its customer's transport
	// drops, so a page reload does not kill the conversation.
	customerReconnectGrace = 5 * time.Minute
	sweepInterval          = time.Minute
)

// Persisted system notices.
const (
	noticeNoAgents = "We're sorry, but there are no support agents available at the moment. Please try again later or continue chatting with our AI assistant."
)

// RoomStore persists rooms. Implemented by repository.RoomRepository.
type RoomStore interface {
	Upsert(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	ListOpen(ctx context.Context) ([]model.Room, error)
	ListAssignedTo(ctx context.Context, agentID string) ([]model.Room, error)
	Assign(ctx context.Context, roomID, agentID string) error
	Unassign(ctx context.Context, roomID string) error
	Touch(ctx context.Context, roomID, lastMessage string, at time.Time) error
	Close(ctx context.Context, roomID string) error
}

// MessageStore persists transcripts. Implemented by repository.MessageRepository.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	RoomMessages(ctx context.Context, roomID string) ([]model.Message, error)
	CreateBatch(ctx context.Context, msgs []model.Message) error
}

// AgentStore persists agent records. Implemented by repository.AgentRepository.
type AgentStore interface {
	Upsert(ctx context.Context, a *model.Agent) error
	SetStatus(ctx context.Context, id string, status model.AgentStatus) error
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	// agents maps connection id to presence for registered agent consoles.
	agents map[string]*model.AgentPresence
	// customers maps room id to the customer's current connection.
	customers map[string]*Client
	// graceUntil holds close deadlines for rooms whose customer disconnected.
	graceUntil map[string]time.Time

	rooms    RoomStore
	messages MessageStore
	agentsDB AgentStore
	presence storage.PresenceStore
	pusher   *push.Sender

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	now func() time.Time
}

func NewHub(rooms RoomStore, messages MessageStore, agents AgentStore, presence storage.PresenceStore, pusher *push.Sender) *Hub {
	if pusher == nil {
		pusher = push.NewSender(nil, "")
	}
	return &Hub{
		clients:    make(map[string]*Client),
		agents:     make(map[string]*model.AgentPresence),
		customers:  make(map[string]*Client),
		graceUntil: make(map[string]time.Time),
		rooms:      rooms,
		messages:   messages,
		agentsDB:   agents,
		presence:   presence,
		pusher:     pusher,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[string]*Client)
	h.agents = make(map[string]*model.AgentPresence)
	h.customers = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.connID] = c
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if h.clients[c.connID] != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.connID)
	presence, wasAgent := h.agents[c.connID]
	delete(h.agents, c.connID)

	var droppedRooms []string
	for roomID, cc := range h.customers {
		if cc == c {
			droppedRooms = append(droppedRooms, roomID)
			delete(h.customers, roomID)
			h.graceUntil[roomID] = h.now().Add(customerReconnectGrace)
		}
	}
	h.mu.Unlock()

	c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if wasAgent {
		h.agentWentAway(ctx, c.connID, presence.AgentName, "has disconnected.")
	}
	for _, roomID := range droppedRooms {
		h.notifyAssignedAgent(ctx, roomID, event.AgentNotificationPayload{
			Kind:    event.NotifyNewMessage,
			Message: "Customer connection lost. The room stays open for a few minutes.",
			RoomID:  roomID,
		})
	}
}

// HandleEvent dispatches one inbound event from a connection.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev event.Event) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch ev.Type {
	case event.TypeRegisterAgent:
		h.handleRegisterAgent(ctx, c, ev)
	case event.TypeRequestAgent:
		h.handleRequestAgent(ctx, c, ev)
	case event.TypeJoinRoom:
		h.handleJoinRoom(ctx, c, ev)
	case event.TypeLeaveRoom:
		h.handleLeaveRoom(ctx, c, ev)
	case event.TypeSendMessage:
		h.handleSendMessage(ctx, c, ev)
	case event.TypeGetChatHistory:
		h.handleGetChatHistory(ctx, c, ev)
	case event.TypeUpdateAgentStatus:
		h.handleUpdateAgentStatus(ctx, c, ev)
	default:
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "unknown event type"}))
	}
}

func (h *Hub) handleRegisterAgent(ctx context.Context, c *Client, ev event.Event) {
	defer logger.DeferLogDuration("registry.registerAgent", time.Now())()
	var p event.RegisterAgentPayload
	if err := ev.Decode(&p); err != nil {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "bad register_agent payload"}))
		return
	}
	if p.AgentName == "" {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "agentName required"}))
		return
	}

	now := h.now()
	if err := h.agentsDB.Upsert(ctx, &model.Agent{ID: c.connID, Name: p.AgentName, Status: model.AgentOnline, LastActive: now}); err != nil {
		logger.Errorf("registry register agent %s: %v", p.AgentName, err)
	}
	if err := h.presence.SetAgentStatus(ctx, c.connID, model.AgentOnline); err != nil {
		logger.Errorf("registry presence online %s: %v", c.connID, err)
	}

	h.mu.Lock()
	h.agents[c.connID] = &model.AgentPresence{AgentID: c.connID, AgentName: p.AgentName, Status: model.AgentOnline}
	h.mu.Unlock()

	h.sendToClient(c, event.New(event.TypeAvailableRooms, h.availableRoomsFor(ctx, c.connID)))
}

func (h *Hub) handleRequestAgent(ctx context.Context, c *Client, ev event.Event) {
	defer logger.DeferLogDuration("registry.requestAgent", time.Now())()
	var p event.RequestAgentPayload
	if err := ev.Decode(&p); err != nil || p.RoomID == "" {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "bad request_agent payload"}))
		return
	}

	now := h.now()
	userName := p.UserName
	if userName == "" {
		userName = "Customer"
	}
	room := &model.Room{
		ID:             p.RoomID,
		UserName:       userName,
		UserSocketID:   c.connID,
		State:          model.RoomWaiting,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if n := len(p.ChatHistory); n > 0 {
		room.LastMessage = p.ChatHistory[n-1].Content
	}
	if err := h.rooms.Upsert(ctx, room); err != nil {
		logger.Errorf("registry request_agent room %s: %v", p.RoomID, err)
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "failed to create room"}))
		return
	}
	for i := range p.ChatHistory {
		p.ChatHistory[i].RoomID = p.RoomID
		if p.ChatHistory[i].Timestamp.IsZero() {
			p.ChatHistory[i].Timestamp = now
		}
	}
	if err := h.messages.CreateBatch(ctx, p.ChatHistory); err != nil {
		logger.Errorf("registry request_agent history %s: %v", p.RoomID, err)
	}

	h.mu.Lock()
	h.customers[p.RoomID] = c
	delete(h.graceUntil, p.RoomID)
	agentConns := h.agentConnsLocked()
	h.mu.Unlock()

	if len(agentConns) == 0 && !h.anyoneOnline(ctx) {
		h.sendToClient(c, event.New(event.TypeNoAgentsAvailable, nil))
		notice := &model.Message{
			RoomID:    p.RoomID,
			Content:   noticeNoAgents,
			Role:      model.RoleSystem,
			SenderID:  model.SenderSystem,
			Timestamp: now,
		}
		if err := h.messages.Create(ctx, notice); err != nil {
			logger.Errorf("registry persist no-agents notice %s: %v", p.RoomID, err)
		}
		return
	}

	notification := event.AgentNotificationPayload{
		Kind:    event.NotifyAgentRequest,
		Message: fmt.Sprintf("%s is requesting an agent", userName),
		RoomID:  p.RoomID,
	}
	for _, ac := range agentConns {
		h.sendToClient(ac, event.New(event.TypeAvailableRooms, h.availableRoomsFor(ctx, ac.connID)))
		h.sendToClient(ac, event.New(event.TypeAgentNotification, notification))
	}
	h.webpushAgents(ctx, notification)
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, ev event.Event) {
	defer logger.DeferLogDuration("registry.joinRoom", time.Now())()
	var p event.JoinRoomPayload
	if err := ev.Decode(&p); err != nil || p.RoomID == "" {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "bad join_room payload"}))
		return
	}

	h.mu.RLock()
	presence, registered := h.agents[c.connID]
	h.mu.RUnlock()
	if !registered {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "agent not registered"}))
		return
	}

	room, err := h.rooms.GetByID(ctx, p.RoomID)
	if err != nil {
		msg := "failed to join room"
		if errors.Is(err, repository.ErrNotFound) {
			msg = "room not found"
		} else {
			logger.Errorf("registry join_room %s: %v", p.RoomID, err)
		}
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: msg}))
		return
	}
	if room.AssignedAgentID != "" && room.AssignedAgentID != c.connID {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "room already has an agent"}))
		return
	}

	if err := h.rooms.Assign(ctx, p.RoomID, c.connID); err != nil {
		logger.Errorf("registry assign %s: %v", p.RoomID, err)
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "failed to join room"}))
		return
	}

	now := h.now()
	notice := &model.Message{
		RoomID:    p.RoomID,
		Content:   fmt.Sprintf("%s has joined the chat.", presence.AgentName),
		Role:      model.RoleSystem,
		SenderID:  model.SenderSystem,
		Timestamp: now,
	}
	if err := h.messages.Create(ctx, notice); err != nil {
		logger.Errorf("registry persist join notice %s: %v", p.RoomID, err)
	}

	history, err := h.messages.RoomMessages(ctx, p.RoomID)
	if err != nil {
		logger.Errorf("registry history %s: %v", p.RoomID, err)
		history = []model.Message{}
	}
	h.sendToClient(c, event.New(event.TypeChatHistory, history))
	h.sendToCustomer(p.RoomID, event.New(event.TypeAgentJoined, event.AgentJoinedPayload{
		AgentName: presence.AgentName,
	}))
	h.refreshAgentRoomLists(ctx)
}

func (h *Hub) handleLeaveRoom(ctx context.Context, c *Client, ev event.Event) {
	defer logger.DeferLogDuration("registry.leaveRoom", time.Now())()
	var p event.LeaveRoomPayload
	if err := ev.Decode(&p); err != nil || p.RoomID == "" {
		h.sendToClient(c, event.New(event.TypeRoomLeft, event.RoomLeftPayload{Success: false, Error: "bad leave_room payload"}))
		return
	}

	h.mu.RLock()
	presence, isAgent := h.agents[c.connID]
	h.mu.RUnlock()

	if isAgent {
		h.agentLeaveRoom(ctx, c, presence, p)
		return
	}
	h.customerLeaveRoom(ctx, c, p)
}

func (h *Hub) agentLeaveRoom(ctx context.Context, c *Client, presence *model.AgentPresence, p event.LeaveRoomPayload) {
	room, err := h.rooms.GetByID(ctx, p.RoomID)
	if err != nil {
		msg := "failed to leave room"
		if errors.Is(err, repository.ErrNotFound) {
			msg = "room not found"
		}
		h.sendToClient(c, event.New(event.TypeRoomLeft, event.RoomLeftPayload{Success: false, RoomID: p.RoomID, Error: msg}))
		return
	}
	if room.AssignedAgentID != c.connID {
		h.sendToClient(c, event.New(event.TypeRoomLeft, event.RoomLeftPayload{Success: false, RoomID: p.RoomID, Error: "not assigned to this room"}))
		return
	}

	if err := h.rooms.Unassign(ctx, p.RoomID); err != nil {
		logger.Errorf("registry unassign %s: %v", p.RoomID, err)
		h.sendToClient(c, event.New(event.TypeRoomLeft, event.RoomLeftPayload{Success: false, RoomID: p.RoomID, Error: "failed to leave room"}))
		return
	}

	notice := &model.Message{
		RoomID:    p.RoomID,
		Content:   fmt.Sprintf("%s has left the chat.", presence.AgentName),
		Role:      model.RoleSystem,
		SenderID:  model.SenderSystem,
		Timestamp: h.now(),
	}
	if err := h.messages.Create(ctx, notice); err != nil {
		logger.Errorf("registry persist leave notice %s: %v", p.RoomID, err)
	}

	h.sendToCustomer(p.RoomID, event.New(event.TypeAgentLeft, nil))
	h.sendToClient(c, event.New(event.TypeRoomLeft, event.RoomLeftPayload{
		Success:        true,
		RoomID:         p.RoomID,
		AvailableRooms: h.availableRoomsFor(ctx, c.connID),
	}))
	h.refreshAgentRoomLists(ctx)
}

func (h *Hub) customerLeaveRoom(ctx context.Context, c *Client, p event.LeaveRoomPayload) {
	if err := h.rooms.Close(ctx, p.RoomID); err != nil {
		logger.Errorf("registry close room %s: %v", p.RoomID, err)
		h.sendToClient(c, event.New(event.TypeRoomLeft, event.RoomLeftPayload{Success: false, RoomID: p.RoomID, Error: "failed to close room"}))
		return
	}

	h.mu.Lock()
	delete(h.customers, p.RoomID)
	delete(h.graceUntil, p.RoomID)
	h.mu.Unlock()

	h.notifyAssignedAgent(ctx, p.RoomID, event.AgentNotificationPayload{
		Kind:    event.NotifyNewMessage,
		Message: "Customer has left the chat.",
		RoomID:  p.RoomID,
	})
	h.sendToClient(c, event.New(event.TypeRoomLeft, event.RoomLeftPayload{Success: true, RoomID: p.RoomID}))
	h.refreshAgentRoomLists(ctx)
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, ev event.Event) {
	defer logger.DeferLogDuration("registry.sendMessage", time.Now())()
	var m model.Message
	if err := ev.Decode(&m); err != nil || m.RoomID == "" || m.Content == "" {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "roomId and content required"}))
		return
	}
	// Client timestamps are kept: they are the reconciliation identity of the
	// optimistic copy already rendered on the sender's screen.
	if m.Timestamp.IsZero() {
		m.Timestamp = h.now()
	}
	if m.SenderID == "" {
		m.SenderID = c.connID
	}

	room, err := h.rooms.GetByID(ctx, m.RoomID)
	if err != nil {
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "room not found"}))
		return
	}

	if err := h.messages.Create(ctx, &m); err != nil {
		logger.Errorf("registry save message room=%s: %v", m.RoomID, err)
		h.sendToClient(c, event.New(event.TypeError, event.ErrorPayload{Message: "failed to save message"}))
		return
	}
	if err := h.rooms.Touch(ctx, m.RoomID, m.Content, m.Timestamp); err != nil {
		logger.Errorf("registry touch room=%s: %v", m.RoomID, err)
	}

	// Echo to the whole room, sender included; clients dedupe by identity.
	out := event.New(event.TypeNewMessage, m)
	h.sendToCustomer(m.RoomID, out)
	if room.AssignedAgentID != "" {
		if ac := h.clientByID(room.AssignedAgentID); ac != nil {
			h.sendToClient(ac, out)
			if m.Role == model.RoleUser {
				h.sendToClient(ac, event.New(event.TypeAgentNotification, event.AgentNotificationPayload{
					Kind:    event.NotifyNewMessage,
					Message: fmt.Sprintf("New message from %s", room.UserName),
					RoomID:  m.RoomID,
				}))
			}
		}
	}
	h.refreshAgentRoomLists(ctx)
}

func (h *Hub) handleGetChatHistory(ctx context.Context, c *Client, ev event.Event) {
	defer logger.DeferLogDuration("registry.getChatHistory", time.Now())()
	var p event.GetChatHistoryPayload
	if err := ev.Decode(&p); err != nil || p.RoomID == "" {
		h.sendToClient(c, event.New(event.TypeChatHistory, []model.Message{}))
		return
	}

	// A history request from a non-agent connection re-binds the room to that
	// connection (customer reconnect after a transport drop).
	h.mu.Lock()
	if _, isAgent := h.agents[c.connID]; !isAgent {
		h.customers[p.RoomID] = c
		delete(h.graceUntil, p.RoomID)
	}
	h.mu.Unlock()

	history, err := h.messages.RoomMessages(ctx, p.RoomID)
	if err != nil {
		logger.Errorf("registry history %s: %v", p.RoomID, err)
		history = []model.Message{}
	}
	h.sendToClient(c, event.New(event.TypeChatHistory, history))
}

func (h *Hub) handleUpdateAgentStatus(ctx context.Context, c *Client, ev event.Event) {
	defer logger.DeferLogDuration("registry.updateAgentStatus", time.Now())()
	var p event.UpdateAgentStatusPayload
	if err := ev.Decode(&p); err != nil || !p.Status.Valid() {
		h.sendToClient(c, event.New(event.TypeStatusUpdated, event.StatusUpdatedPayload{Success: false, Error: "invalid status"}))
		return
	}

	h.mu.Lock()
	presence, registered := h.agents[c.connID]
	if registered {
		presence.Status = p.Status
	}
	h.mu.Unlock()
	if !registered {
		h.sendToClient(c, event.New(event.TypeStatusUpdated, event.StatusUpdatedPayload{Success: false, Error: "agent not registered"}))
		return
	}

	if err := h.agentsDB.SetStatus(ctx, c.connID, p.Status); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Errorf("registry set status %s: %v", c.connID, err)
	}
	if err := h.presence.SetAgentStatus(ctx, c.connID, p.Status); err != nil {
		logger.Errorf("registry presence %s: %v", c.connID, err)
	}

	if p.Status == model.AgentOffline {
		h.agentWentAway(ctx, c.connID, presence.AgentName, "has gone offline.")
	}
	h.sendToClient(c, event.New(event.TypeStatusUpdated, event.StatusUpdatedPayload{Success: true, Status: p.Status}))
}

// agentWentAway unassigns everything the agent held, tells the customers, and
// marks the agent offline.
func (h *Hub) agentWentAway(ctx context.Context, agentID, agentName, noticeSuffix string) {
	if agentName == "" {
		agentName = "Support agent"
	}

	if err := h.presence.SetAgentStatus(ctx, agentID, model.AgentOffline); err != nil {
		logger.Errorf("registry presence offline %s: %v", agentID, err)
	}
	if err := h.agentsDB.SetStatus(ctx, agentID, model.AgentOffline); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Errorf("registry status offline %s: %v", agentID, err)
	}

	held, err := h.rooms.ListAssignedTo(ctx, agentID)
	if err != nil {
		logger.Errorf("registry rooms of %s: %v", agentID, err)
		return
	}
	for _, room := range held {
		if err := h.rooms.Unassign(ctx, room.ID); err != nil {
			logger.Errorf("registry unassign %s: %v", room.ID, err)
			continue
		}
		notice := &model.Message{
			RoomID:    room.ID,
			Content:   fmt.Sprintf("%s %s", agentName, noticeSuffix),
			Role:      model.RoleSystem,
			SenderID:  model.SenderSystem,
			Timestamp: h.now(),
		}
		if err := h.messages.Create(ctx, notice); err != nil {
			logger.Errorf("registry persist away notice %s: %v", room.ID, err)
		}
		h.sendToCustomer(room.ID, event.New(event.TypeAgentLeft, nil))
	}
	h.refreshAgentRoomLists(ctx)
}

// sweep closes rooms idle past the timeout and rooms whose customer never
// came back within the reconnect grace.
func (h *Hub) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	now := h.now()

	open, err := h.rooms.ListOpen(ctx)
	if err != nil {
		logger.Errorf("registry sweep: %v", err)
		return
	}

	h.mu.RLock()
	grace := make(map[string]time.Time, len(h.graceUntil))
	for id, t := range h.graceUntil {
		grace[id] = t
	}
	h.mu.RUnlock()

	var closed []string
	for _, room := range open {
		idle := now.Sub(room.LastActivityAt) >= roomIdleTimeout
		abandoned := false
		if deadline, ok := grace[room.ID]; ok && now.After(deadline) {
			abandoned = true
		}
		if !idle && !abandoned {
			continue
		}
		if err := h.rooms.Close(ctx, room.ID); err != nil {
			logger.Errorf("registry sweep close %s: %v", room.ID, err)
			continue
		}
		closed = append(closed, room.ID)
		if room.AssignedAgentID != "" {
			if ac := h.clientByID(room.AssignedAgentID); ac != nil {
				h.sendToClient(ac, event.New(event.TypeAgentNotification, event.AgentNotificationPayload{
					Kind:    event.NotifyNewMessage,
					Message: fmt.Sprintf("The chat with %s was closed due to inactivity.", room.UserName),
					RoomID:  room.ID,
				}))
			}
		}
	}
	if len(closed) == 0 {
		return
	}

	h.mu.Lock()
	for _, id := range closed {
		delete(h.customers, id)
		delete(h.graceUntil, id)
	}
	h.mu.Unlock()
	h.refreshAgentRoomLists(ctx)
}

// availableRoomsFor builds the sidebar list for one agent: unclaimed rooms
// plus the agent's own, newest activity first.
func (h *Hub) availableRoomsFor(ctx context.Context, agentID string) []model.RoomSummary {
	open, err := h.rooms.ListOpen(ctx)
	if err != nil {
		logger.Errorf("registry list rooms: %v", err)
		return []model.RoomSummary{}
	}
	now := h.now()
	out := make([]model.RoomSummary, 0, len(open))
	for _, room := range open {
		if room.AssignedAgentID != "" && room.AssignedAgentID != agentID {
			continue
		}
		out = append(out, model.RoomSummary{
			ID:              room.ID,
			UserName:        room.UserName,
			LastMessage:     room.LastMessage,
			WaitTime:        WaitLabel(room.CreatedAt, now),
			Active:          room.State == model.RoomActive,
			AssignedAgentID: room.AssignedAgentID,
		})
	}
	return out
}

// WaitLabel renders how long a room has been waiting.
func WaitLabel(since, now time.Time) string {
	mins := int(now.Sub(since) / time.Minute)
	switch {
	case mins < 1:
		return "Just now"
	case mins == 1:
		return "1 min"
	default:
		return fmt.Sprintf("%d mins", mins)
	}
}

func (h *Hub) refreshAgentRoomLists(ctx context.Context) {
	h.mu.RLock()
	conns := h.agentConnsLocked()
	h.mu.RUnlock()
	for _, ac := range conns {
		h.sendToClient(ac, event.New(event.TypeAvailableRooms, h.availableRoomsFor(ctx, ac.connID)))
	}
}

// agentConnsLocked returns connections of registered agents. Caller holds mu.
func (h *Hub) agentConnsLocked() []*Client {
	conns := make([]*Client, 0, len(h.agents))
	for connID := range h.agents {
		if c, ok := h.clients[connID]; ok {
			conns = append(conns, c)
		}
	}
	return conns
}

// anyoneOnline consults the presence store; agents connected to another hub
// instance still count.
func (h *Hub) anyoneOnline(ctx context.Context) bool {
	ids, err := h.presence.OnlineAgentIDs(ctx)
	if err != nil {
		logger.Errorf("registry online agents: %v", err)
		return false
	}
	return len(ids) > 0
}

func (h *Hub) notifyAssignedAgent(ctx context.Context, roomID string, p event.AgentNotificationPayload) {
	room, err := h.rooms.GetByID(ctx, roomID)
	if err != nil || room.AssignedAgentID == "" {
		return
	}
	if ac := h.clientByID(room.AssignedAgentID); ac != nil {
		h.sendToClient(ac, event.New(event.TypeAgentNotification, p))
	}
}

// webpushAgents pushes the notification to every agent with a stored
// subscription. Best effort: failures are logged, stale endpoints dropped.
func (h *Hub) webpushAgents(ctx context.Context, p event.AgentNotificationPayload) {
	if !h.pusher.Enabled() {
		return
	}
	ids, err := h.presence.OnlineAgentIDs(ctx)
	if err != nil {
		return
	}
	n := push.Notification{
		Title: "Live support",
		Body:  p.Message,
		Data:  map[string]string{"room_id": p.RoomID},
	}
	for _, agentID := range ids {
		subs, err := h.presence.Subscriptions(ctx, agentID)
		if err != nil {
			continue
		}
		for _, sub := range subs {
			stale, err := h.pusher.Send(ctx, sub, n)
			if err != nil {
				logger.Errorf("registry webpush %s: %v", agentID, err)
				continue
			}
			if stale {
				if err := h.presence.RemoveSubscription(ctx, agentID, sub.Endpoint); err != nil {
					logger.Errorf("registry drop subscription %s: %v", agentID, err)
				}
			}
		}
	}
}

func (h *Hub) clientByID(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}

func (h *Hub) sendToCustomer(roomID string, ev event.Event) {
	h.mu.RLock()
	c, ok := h.customers[roomID]
	h.mu.RUnlock()
	if ok {
		h.sendToClient(c, ev)
	}
}

func (h *Hub) sendToClient(c *Client, ev event.Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client conn=%s", c.connID)
		c.Close()
	}
}
