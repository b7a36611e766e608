package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livechat/internal/ai"
	"github.com/livechat/internal/event"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
)

// ToastLevel classifies transient UI notices.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
)

// Sink receives UI-facing output from a session. Implementations must not
// call back into the session from inside a callback.
type Sink interface {
	MessagesChanged(msgs []model.Message)
	StatusChanged(status model.RoomStatus)
	Toast(level ToastLevel, text string)
}

// minTypingDuration keeps the typing placeholder visible long enough to
// avoid flicker on very fast AI responses.
const minTypingDuration = time.Second

// handoffAnnounceDelay lets an AI reply that requested handoff render before
// the "connecting you" transition appears.
const handoffAnnounceDelay = time.Second

// CustomerConfig configures a customer session.
type CustomerConfig struct {
	Channel  event.Channel
	AI       *ai.Client
	Sink     Sink
	UserName string
	// RoomID is generated client-side when empty.
	RoomID string
	// Greeting is the opening assistant message; empty disables it.
	Greeting string

	// Test seams; zero values select the production defaults.
	InactivityTimeout time.Duration
	MinTypingDelay    time.Duration
	HandoffDelay      time.Duration
	Now               func() time.Time
}

// Customer is the customer-side session: it owns its channel handle, its
// inactivity timer and the room state machine, and guarantees both are
// released on Close. All state transitions happen under one lock; the only
// suspension point is the AI round-trip, which runs on its own goroutine and
// has its result discarded when the room has moved on.
type Customer struct {
	mu  sync.Mutex
	cfg CustomerConfig

	ch    event.Channel
	rec   *Reconciler
	state State
	timer *InactivityTimer

	aiSeq        int
	disconnected bool
	closed       bool
	idleClosed   bool
	idleNoticed  bool

	wg sync.WaitGroup
}

// NewCustomer creates a customer session over the given channel.
func NewCustomer(cfg CustomerConfig) *Customer {
	if cfg.RoomID == "" {
		cfg.RoomID = uuid.New().String()
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = InactivityTimeout
	}
	if cfg.MinTypingDelay < 0 {
		cfg.MinTypingDelay = 0
	} else if cfg.MinTypingDelay == 0 {
		cfg.MinTypingDelay = minTypingDuration
	}
	if cfg.HandoffDelay == 0 {
		cfg.HandoffDelay = handoffAnnounceDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Customer{
		cfg:   cfg,
		ch:    cfg.Channel,
		rec:   NewReconciler(),
		state: NewState(),
	}
}

// RoomID returns the room this session owns.
func (c *Customer) RoomID() string { return c.cfg.RoomID }

// Status returns the current room status.
func (c *Customer) Status() model.RoomStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status
}

// Messages returns the rendered message list.
func (c *Customer) Messages() []model.Message {
	return c.rec.Messages()
}

// Open starts consuming channel events and arms the inactivity timer.
func (c *Customer) Open() {
	c.mu.Lock()
	if c.cfg.Greeting != "" {
		c.rec.Append(model.Message{
			Content:   c.cfg.Greeting,
			Role:      model.RoleAssistant,
			RoomID:    c.cfg.RoomID,
			Timestamp: c.cfg.Now(),
		})
		c.notifyMessages()
	}
	c.timer = NewInactivityTimer(c.cfg.InactivityTimeout, c.onIdleTimeout)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for ev := range c.ch.Events() {
			c.handleEvent(ev)
		}
	}()
}

// Close tears the session down: timer cancelled, channel closed. Idempotent.
func (c *Customer) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.state.Status = model.StatusClosed
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	if err := c.ch.Close(); err != nil {
		logger.Errorf("customer session close: %v", err)
	}
	c.wg.Wait()
}

// Send handles a user utterance: renders it, then routes it to the AI, the
// connected agent, or the waiting queue depending on the current state.
func (c *Customer) Send(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		// A room closed by the inactivity timer tells the user why on their
		// next interaction; any later sends stay silent.
		if c.idleClosed && !c.idleNoticed {
			c.idleNoticed = true
			c.appendSystem(TextIdleClosed)
		}
		return
	}

	msg := model.Message{
		Content:   text,
		Role:      model.RoleUser,
		RoomID:    c.cfg.RoomID,
		SenderID:  c.ch.ConnectionID(),
		Timestamp: c.cfg.Now(),
	}

	switch StrategyFor(c.state.Status) {
	case InsertOptimistic:
		c.rec.Append(msg)
	case InsertDeferred:
		// Agent connected: the coordinator echoes to the whole room, so the
		// first self-echo is the rendered copy.
		c.rec.MarkDeferred(msg)
	}
	c.notifyMessages()
	c.touchLocked()

	switch c.state.Status {
	case model.StatusAgentConnected:
		c.send(event.New(event.TypeSendMessage, msg))
	case model.StatusAwaitingAgent:
		c.appendSystem(TextHeldForAgent)
	default:
		if IsAgentRequestPhrase(text) {
			c.applyLocked(RequestAgent{})
			return
		}
		c.generateLocked()
	}
}

// RequestAgent asks for a human agent (the explicit UI action).
func (c *Customer) RequestAgent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(RequestAgent{})
}

// Leave closes the room with the given reason. The close is optimistic:
// local state is final immediately, and a later coordinator failure only
// surfaces as a toast.
func (c *Customer) Leave(reason model.LeaveReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(Leave{Reason: reason})
}

func (c *Customer) handleEvent(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case event.TypeConnect:
		wasDisconnected := c.disconnected
		c.disconnected = false
		if c.closed {
			return
		}
		if wasDisconnected {
			// Room state survives a transport drop; the transcript is
			// restored by a history re-fetch and reconciled idempotently.
			c.send(event.New(event.TypeGetChatHistory, event.GetChatHistoryPayload{RoomID: c.cfg.RoomID}))
			c.touchLocked()
		}

	case event.TypeDisconnect, event.TypeConnectError:
		// No auto-close while offline: a disconnected client cannot tell an
		// idle room from a dead link.
		c.disconnected = true
		if c.timer != nil {
			c.timer.Stop()
		}
		if !c.closed {
			c.timer = nil
		}

	case event.TypeAgentJoined:
		var p event.AgentJoinedPayload
		if err := ev.Decode(&p); err != nil {
			logger.Errorf("customer: %v", err)
			return
		}
		c.applyLocked(AgentJoined{AgentName: p.AgentName})

	case event.TypeAgentLeft:
		c.applyLocked(AgentLeft{Pending: c.pendingUser()})

	case event.TypeNoAgentsAvailable:
		c.applyLocked(NoAgents{Pending: c.pendingUser()})

	case event.TypeNewMessage:
		var m model.Message
		if err := ev.Decode(&m); err != nil {
			logger.Errorf("customer: %v", err)
			return
		}
		if m.RoomID != c.cfg.RoomID || c.closed {
			return
		}
		if c.rec.Deliver(m, c.localContext()) {
			c.notifyMessages()
			c.touchLocked()
		}

	case event.TypeChatHistory:
		var history []model.Message
		if err := ev.Decode(&history); err != nil {
			logger.Errorf("customer: %v", err)
			return
		}
		c.rec.Replace(history, c.localContext())
		c.notifyMessages()
		c.touchLocked()

	case event.TypeRoomLeft:
		var p event.RoomLeftPayload
		if err := ev.Decode(&p); err != nil {
			logger.Errorf("customer: %v", err)
			return
		}
		if !p.Success {
			c.cfg.Sink.Toast(ToastError, "Failed to leave room: "+p.Error)
		}
	}
}

// pendingUser resolves the most recent unanswered user message for resume-AI
// transitions, nil when the conversation does not end on a user turn.
func (c *Customer) pendingUser() *model.Message {
	if !c.rec.LastIsUser() {
		return nil
	}
	m, ok := c.rec.LastUserMessage()
	if !ok {
		return nil
	}
	return &m
}

func (c *Customer) localContext() LocalContext {
	return LocalContext{ConnID: c.ch.ConnectionID()}
}

// applyLocked runs one reducer step and executes its effects. Caller holds mu.
func (c *Customer) applyLocked(in Input) {
	prev := c.state.Status
	next, effects := Reduce(c.state, in)
	c.state = next
	for _, fx := range effects {
		c.runEffect(fx)
	}
	if c.state.Status != prev {
		c.cfg.Sink.StatusChanged(c.state.Status)
	}
}

func (c *Customer) runEffect(fx Effect) {
	switch e := fx.(type) {
	case AppendSystem:
		c.appendSystem(e.Content)

	case AppendAssistant:
		c.rec.Append(model.Message{
			Content:   e.Content,
			Role:      model.RoleAssistant,
			RoomID:    c.cfg.RoomID,
			Timestamp: c.cfg.Now(),
		})
		c.notifyMessages()

	case EmitRequestAgent:
		c.send(event.New(event.TypeRequestAgent, event.RequestAgentPayload{
			RoomID:      c.cfg.RoomID,
			UserID:      c.ch.ConnectionID(),
			UserName:    c.cfg.UserName,
			ChatHistory: c.rec.Messages(),
		}))

	case ResumeAI:
		c.generateLocked()

	case CloseRoom:
		c.closed = true
		if e.Reason == model.LeaveInactivityTimeout {
			c.idleClosed = true
		}
		if c.timer != nil {
			c.timer.Stop()
		}
		c.send(event.New(event.TypeLeaveRoom, event.LeaveRoomPayload{
			RoomID: c.cfg.RoomID,
			Reason: e.Reason,
		}))
	}
}

func (c *Customer) appendSystem(content string) {
	c.rec.Append(model.Message{
		Content:   content,
		Role:      model.RoleSystem,
		RoomID:    c.cfg.RoomID,
		SenderID:  model.SenderSystem,
		Timestamp: c.cfg.Now(),
	})
	c.notifyMessages()
}

// generateLocked kicks off one AI round-trip for the current transcript.
// Caller holds mu. The result is applied only if the room is still AI-only
// and no newer generation has started.
func (c *Customer) generateLocked() {
	c.aiSeq++
	seq := c.aiSeq
	c.rec.AppendTyping()
	c.notifyMessages()
	transcript := c.rec.Messages()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := time.Now()
		resp, err := c.cfg.AI.Generate(context.Background(), ai.Conversation(transcript))
		if elapsed := time.Since(start); elapsed < c.cfg.MinTypingDelay {
			time.Sleep(c.cfg.MinTypingDelay - elapsed)
		}
		c.finishGeneration(seq, resp, err)
	}()
}

func (c *Customer) finishGeneration(seq int, resp *ai.GenerateResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.aiSeq || c.closed || c.state.Status != model.StatusAIOnly {
		// The room moved on while we were generating; the reply is stale.
		c.rec.DropTyping()
		c.notifyMessages()
		return
	}

	final := model.Message{
		Role:      model.RoleAssistant,
		RoomID:    c.cfg.RoomID,
		Timestamp: c.cfg.Now(),
	}
	if err != nil {
		logger.Errorf("customer: ai generate: %v", err)
		final.Content = TextAIError
	} else {
		final.Content = resp.AIResponse
	}
	if !c.rec.ResolveTyping(final) {
		c.rec.Append(final)
	}
	c.notifyMessages()
	c.touchLocked()

	if err == nil && resp.NeedsAgentHandoff {
		// Let the reply render before announcing the handoff.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			time.Sleep(c.cfg.HandoffDelay)
			c.RequestAgent()
		}()
	}
}

func (c *Customer) onIdleTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.applyLocked(Leave{Reason: model.LeaveInactivityTimeout})
	c.cfg.Sink.Toast(ToastInfo, "Chat closed after 10 minutes of inactivity.")
}

// touchLocked records room activity: cancel-and-recreate the timer. A closed
// session never re-arms.
func (c *Customer) touchLocked() {
	if c.closed || c.disconnected {
		return
	}
	if c.timer == nil {
		c.timer = NewInactivityTimer(c.cfg.InactivityTimeout, c.onIdleTimeout)
		return
	}
	c.timer.Reset()
}

func (c *Customer) notifyMessages() {
	c.cfg.Sink.MessagesChanged(c.rec.Messages())
}

func (c *Customer) send(ev event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ch.Send(ctx, ev); err != nil {
		logger.Errorf("customer: send %s: %v", ev.Type, err)
	}
}
