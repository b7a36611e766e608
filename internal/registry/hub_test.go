package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/livechat/internal/event"
	"github.com/livechat/internal/model"
	"github.com/livechat/internal/repository"
	"github.com/livechat/internal/storage/memory"
)

// --- in-memory stores ---

type memRooms struct {
	mu    sync.Mutex
	rooms map[string]*model.Room
}

func newMemRooms() *memRooms { return &memRooms{rooms: make(map[string]*model.Room)} }

func (s *memRooms) Upsert(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *memRooms) GetByID(ctx context.Context, id string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *memRooms) ListOpen(ctx context.Context) ([]model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Room
	for _, room := range s.rooms {
		if room.State != model.RoomClosed {
			out = append(out, *room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (s *memRooms) ListAssignedTo(ctx context.Context, agentID string) ([]model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Room
	for _, room := range s.rooms {
		if room.AssignedAgentID == agentID && room.State != model.RoomClosed {
			out = append(out, *room)
		}
	}
	return out, nil
}

func (s *memRooms) Assign(ctx context.Context, roomID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.AssignedAgentID = agentID
	room.State = model.RoomActive
	return nil
}

func (s *memRooms) Unassign(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.AssignedAgentID = ""
	room.State = model.RoomWaiting
	return nil
}

func (s *memRooms) Touch(ctx context.Context, roomID, lastMessage string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.LastMessage = lastMessage
	room.LastActivityAt = at
	if room.State == model.RoomInactive {
		room.State = model.RoomWaiting
	}
	return nil
}

func (s *memRooms) Close(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.State = model.RoomClosed
	room.AssignedAgentID = ""
	return nil
}

func (s *memRooms) get(t *testing.T, id string) model.Room {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		t.Fatalf("room %s not stored", id)
	}
	return *room
}

type memMessages struct {
	mu     sync.Mutex
	nextID int64
	msgs   []model.Message
}

func (s *memMessages) Create(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.msgs = append(s.msgs, *m)
	return nil
}

func (s *memMessages) RoomMessages(ctx context.Context, roomID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMessages) CreateBatch(ctx context.Context, msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		dup := false
		for _, have := range s.msgs {
			if have.RoomID == m.RoomID && have.Role == m.Role && have.Content == m.Content && have.Timestamp.Equal(m.Timestamp) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.nextID++
		m.ID = s.nextID
		s.msgs = append(s.msgs, m)
	}
	return nil
}

func (s *memMessages) forRoom(roomID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

type memAgents struct {
	mu       sync.Mutex
	agents   map[string]*model.Agent
	statuses []model.AgentStatus
}

func newMemAgents() *memAgents { return &memAgents{agents: make(map[string]*model.Agent)} }

func (s *memAgents) Upsert(ctx context.Context, a *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *memAgents) SetStatus(ctx context.Context, id string, status model.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Status = status
	s.statuses = append(s.statuses, status)
	return nil
}

// --- fixture ---

type hubFixture struct {
	hub      *Hub
	rooms    *memRooms
	messages *memMessages
	agents   *memAgents
	presence *memory.Client
	clock    time.Time
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	fx := &hubFixture{
		rooms:    newMemRooms(),
		messages: &memMessages{},
		agents:   newMemAgents(),
		presence: memory.New(),
		clock:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.hub = NewHub(fx.rooms, fx.messages, fx.agents, fx.presence, nil)
	fx.hub.now = func() time.Time { return fx.clock }
	return fx
}

func (fx *hubFixture) connect(connID string) *Client {
	c := NewClient(fx.hub, nil, connID)
	fx.hub.addClient(c)
	return c
}

// registerAgent connects a console and completes registration, draining the
// initial room list.
func (fx *hubFixture) registerAgent(t *testing.T, connID, name string) *Client {
	t.Helper()
	c := fx.connect(connID)
	fx.hub.HandleEvent(context.Background(), c, event.New(event.TypeRegisterAgent, event.RegisterAgentPayload{
		AgentID:   connID,
		AgentName: name,
	}))
	ev := recv(t, c)
	if ev.Type != event.TypeAvailableRooms {
		t.Fatalf("after register got %s, want available_rooms", ev.Type)
	}
	return c
}

// requestAgent connects a customer and files a handoff request for roomID.
func (fx *hubFixture) requestAgent(t *testing.T, connID, roomID, userName string, history ...model.Message) *Client {
	t.Helper()
	c := fx.connect(connID)
	fx.hub.HandleEvent(context.Background(), c, event.New(event.TypeRequestAgent, event.RequestAgentPayload{
		RoomID:      roomID,
		UserName:    userName,
		ChatHistory: history,
	}))
	return c
}

func recv(t *testing.T, c *Client) event.Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

// recvType drains events until one of the wanted type arrives.
func recvType(t *testing.T, c *Client, want event.Type) event.Event {
	t.Helper()
	for i := 0; i < 16; i++ {
		ev := recv(t, c)
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("no %s event among first 16", want)
	return event.Event{}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

// --- tests ---

func TestHubRegisterAgent(t *testing.T) {
	fx := newHubFixture(t)
	c := fx.registerAgent(t, "agent-1", "Alice")

	status, err := fx.presence.AgentStatus(context.Background(), "agent-1")
	if err != nil || status != model.AgentOnline {
		t.Fatalf("presence status = %s, %v; want online", status, err)
	}
	fx.agents.mu.Lock()
	a := fx.agents.agents["agent-1"]
	fx.agents.mu.Unlock()
	if a == nil || a.Name != "Alice" || a.Status != model.AgentOnline {
		t.Fatalf("agent record = %+v", a)
	}
	assertNoEvent(t, c)
}

func TestHubRegisterAgentRequiresName(t *testing.T) {
	fx := newHubFixture(t)
	c := fx.connect("agent-1")
	fx.hub.HandleEvent(context.Background(), c, event.New(event.TypeRegisterAgent, event.RegisterAgentPayload{}))

	ev := recv(t, c)
	if ev.Type != event.TypeError {
		t.Fatalf("got %s, want error", ev.Type)
	}
}

func TestHubRequestAgentNotifiesAgents(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	history := []model.Message{
		{Content: "hi", Role: model.RoleUser, Timestamp: fx.clock.Add(-time.Minute)},
		{Content: "hello", Role: model.RoleAssistant, Timestamp: fx.clock.Add(-30 * time.Second)},
	}
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana", history...)

	room := fx.rooms.get(t, "room-1")
	if room.State != model.RoomWaiting || room.UserName != "Dana" || room.UserSocketID != "conn-cust" {
		t.Fatalf("stored room = %+v", room)
	}
	if room.LastMessage != "hello" {
		t.Fatalf("last message = %q", room.LastMessage)
	}
	if got := fx.messages.forRoom("room-1"); len(got) != 2 {
		t.Fatalf("persisted %d history messages, want 2", len(got))
	}

	ev := recv(t, agent)
	if ev.Type != event.TypeAvailableRooms {
		t.Fatalf("first agent event %s, want available_rooms", ev.Type)
	}
	var rooms []model.RoomSummary
	if err := ev.Decode(&rooms); err != nil || len(rooms) != 1 || rooms[0].ID != "room-1" {
		t.Fatalf("room list = %+v (%v)", rooms, err)
	}
	if rooms[0].WaitTime != "Just now" {
		t.Fatalf("wait time = %q", rooms[0].WaitTime)
	}

	ev = recv(t, agent)
	if ev.Type != event.TypeAgentNotification {
		t.Fatalf("second agent event %s, want agent_notification", ev.Type)
	}
	var note event.AgentNotificationPayload
	if err := ev.Decode(&note); err != nil {
		t.Fatal(err)
	}
	if note.Kind != event.NotifyAgentRequest || note.RoomID != "room-1" || !strings.Contains(note.Message, "Dana") {
		t.Fatalf("notification = %+v", note)
	}
	assertNoEvent(t, cust)
}

func TestHubRequestAgentDeduplicatesHistory(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerAgent(t, "agent-1", "Alice")
	history := []model.Message{{Content: "hi", Role: model.RoleUser, Timestamp: fx.clock}}

	fx.requestAgent(t, "conn-cust", "room-1", "Dana", history...)
	cust2 := fx.connect("conn-cust-2")
	fx.hub.HandleEvent(context.Background(), cust2, event.New(event.TypeRequestAgent, event.RequestAgentPayload{
		RoomID:      "room-1",
		UserName:    "Dana",
		ChatHistory: history,
	}))

	if got := fx.messages.forRoom("room-1"); len(got) != 1 {
		t.Fatalf("persisted %d messages after repeat request, want 1", len(got))
	}
}

func TestHubRequestAgentNoAgents(t *testing.T) {
	fx := newHubFixture(t)
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")

	ev := recv(t, cust)
	if ev.Type != event.TypeNoAgentsAvailable {
		t.Fatalf("got %s, want no_agents_available", ev.Type)
	}

	msgs := fx.messages.forRoom("room-1")
	if len(msgs) != 1 || msgs[0].Role != model.RoleSystem || !strings.Contains(msgs[0].Content, "no support agents available") {
		t.Fatalf("persisted notice = %+v", msgs)
	}
}

func TestHubJoinRoom(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana",
		model.Message{Content: "hi", Role: model.RoleUser, Timestamp: fx.clock})
	recvType(t, agent, event.TypeAgentNotification)

	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{
		RoomID: "room-1", AgentID: "agent-1",
	}))

	room := fx.rooms.get(t, "room-1")
	if room.AssignedAgentID != "agent-1" || room.State != model.RoomActive {
		t.Fatalf("room after join = %+v", room)
	}

	ev := recvType(t, agent, event.TypeChatHistory)
	var history []model.Message
	if err := ev.Decode(&history); err != nil {
		t.Fatal(err)
	}
	// Transcript snapshot plus the join notice.
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[1].Role != model.RoleSystem || !strings.Contains(history[1].Content, "Alice has joined") {
		t.Fatalf("join notice = %+v", history[1])
	}

	ev = recv(t, cust)
	if ev.Type != event.TypeAgentJoined {
		t.Fatalf("customer got %s, want agent_joined", ev.Type)
	}
	var joined event.AgentJoinedPayload
	if err := ev.Decode(&joined); err != nil || joined.AgentName != "Alice" {
		t.Fatalf("agent_joined payload = %+v (%v)", joined, err)
	}
}

func TestHubJoinRoomAlreadyClaimed(t *testing.T) {
	fx := newHubFixture(t)
	alice := fx.registerAgent(t, "agent-1", "Alice")
	bob := fx.registerAgent(t, "agent-2", "Bob")
	fx.requestAgent(t, "conn-cust", "room-1", "Dana")

	fx.hub.HandleEvent(context.Background(), alice, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))

	fx.hub.HandleEvent(context.Background(), bob, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))
	ev := recvType(t, bob, event.TypeError)
	var errp event.ErrorPayload
	if err := ev.Decode(&errp); err != nil || errp.Message != "room already has an agent" {
		t.Fatalf("error payload = %+v (%v)", errp, err)
	}
}

func TestHubJoinRoomUnknownRoom(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")

	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "nope"}))
	ev := recv(t, agent)
	var errp event.ErrorPayload
	if ev.Type != event.TypeError || ev.Decode(&errp) != nil || errp.Message != "room not found" {
		t.Fatalf("got %s %s", ev.Type, ev.Payload)
	}
}

func TestHubSendMessagePreservesClientTimestamp(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recvType(t, agent, event.TypeAgentNotification)
	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))
	recvType(t, agent, event.TypeChatHistory)
	recv(t, cust) // agent_joined

	sent := fx.clock.Add(-3 * time.Second)
	fx.hub.HandleEvent(context.Background(), cust, event.New(event.TypeSendMessage, model.Message{
		RoomID:    "room-1",
		Content:   "my order is late",
		Role:      model.RoleUser,
		Timestamp: sent,
	}))

	// The sender's echo must carry the original timestamp so the optimistic
	// copy reconciles instead of duplicating.
	ev := recv(t, cust)
	if ev.Type != event.TypeNewMessage {
		t.Fatalf("customer got %s, want new_message", ev.Type)
	}
	var echoed model.Message
	if err := ev.Decode(&echoed); err != nil {
		t.Fatal(err)
	}
	if !echoed.Timestamp.Equal(sent) {
		t.Fatalf("echo timestamp = %v, want %v", echoed.Timestamp, sent)
	}

	ev = recvType(t, agent, event.TypeNewMessage)
	var got model.Message
	if err := ev.Decode(&got); err != nil || got.Content != "my order is late" {
		t.Fatalf("agent copy = %+v (%v)", got, err)
	}
	note := recvType(t, agent, event.TypeAgentNotification)
	var np event.AgentNotificationPayload
	if err := note.Decode(&np); err != nil || np.Kind != event.NotifyNewMessage {
		t.Fatalf("notification = %+v (%v)", np, err)
	}

	room := fx.rooms.get(t, "room-1")
	if room.LastMessage != "my order is late" || !room.LastActivityAt.Equal(sent) {
		t.Fatalf("room after message = %+v", room)
	}
}

func TestHubSendMessageStampsMissingTimestamp(t *testing.T) {
	fx := newHubFixture(t)
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recv(t, cust) // no_agents_available

	fx.hub.HandleEvent(context.Background(), cust, event.New(event.TypeSendMessage, model.Message{
		RoomID:  "room-1",
		Content: "hello?",
		Role:    model.RoleUser,
	}))
	ev := recvType(t, cust, event.TypeNewMessage)
	var m model.Message
	if err := ev.Decode(&m); err != nil {
		t.Fatal(err)
	}
	if !m.Timestamp.Equal(fx.clock) {
		t.Fatalf("stamped timestamp = %v, want %v", m.Timestamp, fx.clock)
	}
	if m.SenderID != "conn-cust" {
		t.Fatalf("sender id = %q", m.SenderID)
	}
}

func TestHubSendMessageUnknownRoom(t *testing.T) {
	fx := newHubFixture(t)
	c := fx.connect("conn-cust")
	fx.hub.HandleEvent(context.Background(), c, event.New(event.TypeSendMessage, model.Message{
		RoomID: "nope", Content: "hi", Role: model.RoleUser,
	}))
	ev := recv(t, c)
	if ev.Type != event.TypeError {
		t.Fatalf("got %s, want error", ev.Type)
	}
}

func TestHubAgentLeaveRoom(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recvType(t, agent, event.TypeAgentNotification)
	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))
	recvType(t, agent, event.TypeChatHistory)
	recv(t, cust) // agent_joined

	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeLeaveRoom, event.LeaveRoomPayload{
		RoomID: "room-1",
		Reason: model.LeaveManualExit,
	}))

	if ev := recv(t, cust); ev.Type != event.TypeAgentLeft {
		t.Fatalf("customer got %s, want agent_left", ev.Type)
	}
	ev := recvType(t, agent, event.TypeRoomLeft)
	var left event.RoomLeftPayload
	if err := ev.Decode(&left); err != nil || !left.Success || left.RoomID != "room-1" {
		t.Fatalf("room_left = %+v (%v)", left, err)
	}
	if len(left.AvailableRooms) != 1 {
		t.Fatalf("available rooms in room_left = %d, want 1", len(left.AvailableRooms))
	}

	room := fx.rooms.get(t, "room-1")
	if room.AssignedAgentID != "" || room.State != model.RoomWaiting {
		t.Fatalf("room after leave = %+v", room)
	}
	msgs := fx.messages.forRoom("room-1")
	lastMsg := msgs[len(msgs)-1]
	if lastMsg.Role != model.RoleSystem || !strings.Contains(lastMsg.Content, "Alice has left") {
		t.Fatalf("leave notice = %+v", lastMsg)
	}
}

func TestHubAgentLeaveRoomNotAssigned(t *testing.T) {
	fx := newHubFixture(t)
	alice := fx.registerAgent(t, "agent-1", "Alice")
	bob := fx.registerAgent(t, "agent-2", "Bob")
	fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	fx.hub.HandleEvent(context.Background(), alice, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))

	fx.hub.HandleEvent(context.Background(), bob, event.New(event.TypeLeaveRoom, event.LeaveRoomPayload{RoomID: "room-1"}))
	ev := recvType(t, bob, event.TypeRoomLeft)
	var left event.RoomLeftPayload
	if err := ev.Decode(&left); err != nil || left.Success || left.Error != "not assigned to this room" {
		t.Fatalf("room_left = %+v (%v)", left, err)
	}
}

func TestHubCustomerLeaveClosesRoom(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recvType(t, agent, event.TypeAgentNotification)
	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))
	recvType(t, agent, event.TypeChatHistory)
	recv(t, cust) // agent_joined

	fx.hub.HandleEvent(context.Background(), cust, event.New(event.TypeLeaveRoom, event.LeaveRoomPayload{
		RoomID: "room-1",
		Reason: model.LeaveManualExit,
	}))

	room := fx.rooms.get(t, "room-1")
	if room.State != model.RoomClosed {
		t.Fatalf("room state = %s, want closed", room.State)
	}
	ev := recvType(t, cust, event.TypeRoomLeft)
	var left event.RoomLeftPayload
	if err := ev.Decode(&left); err != nil || !left.Success {
		t.Fatalf("room_left = %+v (%v)", left, err)
	}
}

func TestHubGetChatHistoryRebindsCustomer(t *testing.T) {
	fx := newHubFixture(t)
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana",
		model.Message{Content: "hi", Role: model.RoleUser, Timestamp: fx.clock})
	recv(t, cust) // no_agents_available

	// Transport drop and reconnect with a fresh connection id.
	fx.hub.removeClient(cust)
	reconnected := fx.connect("conn-cust-2")
	fx.hub.HandleEvent(context.Background(), reconnected, event.New(event.TypeGetChatHistory, event.GetChatHistoryPayload{RoomID: "room-1"}))

	ev := recv(t, reconnected)
	if ev.Type != event.TypeChatHistory {
		t.Fatalf("got %s, want chat_history", ev.Type)
	}
	var history []model.Message
	if err := ev.Decode(&history); err != nil || len(history) != 2 {
		t.Fatalf("history = %+v (%v)", history, err)
	}

	fx.hub.mu.RLock()
	bound := fx.hub.customers["room-1"]
	_, graced := fx.hub.graceUntil["room-1"]
	fx.hub.mu.RUnlock()
	if bound != reconnected {
		t.Fatal("room not rebound to reconnected customer")
	}
	if graced {
		t.Fatal("reconnect grace deadline not cleared")
	}
}

func TestHubUpdateStatusBroadcast(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")

	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeUpdateAgentStatus, event.UpdateAgentStatusPayload{
		Status: model.AgentBusy,
	}))

	ev := recv(t, agent)
	var up event.StatusUpdatedPayload
	if ev.Type != event.TypeStatusUpdated || ev.Decode(&up) != nil || !up.Success || up.Status != model.AgentBusy {
		t.Fatalf("status_updated = %s %s", ev.Type, ev.Payload)
	}
	status, _ := fx.presence.AgentStatus(context.Background(), "agent-1")
	if status != model.AgentBusy {
		t.Fatalf("presence = %s, want busy", status)
	}
}

func TestHubUpdateStatusInvalid(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")

	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeUpdateAgentStatus, event.UpdateAgentStatusPayload{
		Status: "away",
	}))
	ev := recv(t, agent)
	var up event.StatusUpdatedPayload
	if ev.Type != event.TypeStatusUpdated || ev.Decode(&up) != nil || up.Success {
		t.Fatalf("got %s %s", ev.Type, ev.Payload)
	}
}

func TestHubOfflineReleasesRooms(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recvType(t, agent, event.TypeAgentNotification)
	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))
	recvType(t, agent, event.TypeChatHistory)
	recv(t, cust) // agent_joined

	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeUpdateAgentStatus, event.UpdateAgentStatusPayload{
		Status: model.AgentOffline,
	}))

	if ev := recv(t, cust); ev.Type != event.TypeAgentLeft {
		t.Fatalf("customer got %s, want agent_left", ev.Type)
	}
	room := fx.rooms.get(t, "room-1")
	if room.AssignedAgentID != "" || room.State != model.RoomWaiting {
		t.Fatalf("room after offline = %+v", room)
	}
	msgs := fx.messages.forRoom("room-1")
	lastMsg := msgs[len(msgs)-1]
	if !strings.Contains(lastMsg.Content, "Alice has gone offline") {
		t.Fatalf("offline notice = %+v", lastMsg)
	}
	recvType(t, agent, event.TypeStatusUpdated)
}

func TestHubAgentDisconnectReleasesRooms(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recvType(t, agent, event.TypeAgentNotification)
	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))
	recvType(t, agent, event.TypeChatHistory)
	recv(t, cust) // agent_joined

	fx.hub.removeClient(agent)

	if ev := recv(t, cust); ev.Type != event.TypeAgentLeft {
		t.Fatalf("customer got %s, want agent_left", ev.Type)
	}
	room := fx.rooms.get(t, "room-1")
	if room.AssignedAgentID != "" {
		t.Fatalf("room still assigned: %+v", room)
	}
	msgs := fx.messages.forRoom("room-1")
	lastMsg := msgs[len(msgs)-1]
	if !strings.Contains(lastMsg.Content, "Alice has disconnected") {
		t.Fatalf("disconnect notice = %+v", lastMsg)
	}
	status, _ := fx.presence.AgentStatus(context.Background(), "agent-1")
	if status != model.AgentOffline {
		t.Fatalf("presence = %s, want offline", status)
	}
}

func TestHubCustomerDisconnectGrace(t *testing.T) {
	fx := newHubFixture(t)
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recv(t, cust) // no_agents_available

	fx.hub.removeClient(cust)

	// The room survives the disconnect itself.
	if room := fx.rooms.get(t, "room-1"); room.State == model.RoomClosed {
		t.Fatal("room closed immediately on disconnect")
	}

	// Sweep inside the grace window keeps it open.
	fx.clock = fx.clock.Add(2 * time.Minute)
	fx.hub.sweep(context.Background())
	if room := fx.rooms.get(t, "room-1"); room.State == model.RoomClosed {
		t.Fatal("room closed inside reconnect grace")
	}

	// Past the grace deadline the sweep closes it.
	fx.clock = fx.clock.Add(4 * time.Minute)
	fx.hub.sweep(context.Background())
	if room := fx.rooms.get(t, "room-1"); room.State != model.RoomClosed {
		t.Fatalf("room state = %s, want closed after grace", room.State)
	}
}

func TestHubSweepClosesIdleRooms(t *testing.T) {
	fx := newHubFixture(t)
	agent := fx.registerAgent(t, "agent-1", "Alice")
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recvType(t, agent, event.TypeAgentNotification)
	fx.hub.HandleEvent(context.Background(), agent, event.New(event.TypeJoinRoom, event.JoinRoomPayload{RoomID: "room-1"}))
	recvType(t, agent, event.TypeChatHistory)
	recv(t, cust) // agent_joined

	fx.clock = fx.clock.Add(11 * time.Minute)
	fx.hub.sweep(context.Background())

	room := fx.rooms.get(t, "room-1")
	if room.State != model.RoomClosed {
		t.Fatalf("room state = %s, want closed", room.State)
	}
	ev := recvType(t, agent, event.TypeAgentNotification)
	var note event.AgentNotificationPayload
	if err := ev.Decode(&note); err != nil || !strings.Contains(note.Message, "closed due to inactivity") {
		t.Fatalf("sweep notification = %+v (%v)", note, err)
	}
}

func TestHubSweepKeepsActiveRooms(t *testing.T) {
	fx := newHubFixture(t)
	cust := fx.requestAgent(t, "conn-cust", "room-1", "Dana")
	recv(t, cust) // no_agents_available

	fx.clock = fx.clock.Add(5 * time.Minute)
	fx.hub.HandleEvent(context.Background(), cust, event.New(event.TypeSendMessage, model.Message{
		RoomID: "room-1", Content: "still here", Role: model.RoleUser, Timestamp: fx.clock,
	}))
	recvType(t, cust, event.TypeNewMessage)

	fx.clock = fx.clock.Add(6 * time.Minute)
	fx.hub.sweep(context.Background())
	if room := fx.rooms.get(t, "room-1"); room.State == model.RoomClosed {
		t.Fatal("active room closed by sweep")
	}
}

func TestWaitLabel(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		since time.Time
		want  string
	}{
		{now.Add(-10 * time.Second), "Just now"},
		{now.Add(-time.Minute), "1 min"},
		{now.Add(-90 * time.Second), "1 min"},
		{now.Add(-2 * time.Minute), "2 mins"},
		{now.Add(-45 * time.Minute), "45 mins"},
	}
	for _, tc := range cases {
		if got := WaitLabel(tc.since, now); got != tc.want {
			t.Errorf("WaitLabel(%v) = %q, want %q", now.Sub(tc.since), got, tc.want)
		}
	}
}
