package session

import (
	"strings"

	"github.com/livechat/internal/model"
)

// User-visible texts produced by transitions.
const (
	TextConnecting = "Connecting you to a support agent. Please wait a moment..."
	TextNoAgents   = "We're sorry, but there are no support agents available at the moment. Please try again later or continue chatting with our AI assistant."
	TextAgentLeft  = "Support agent has left the chat. You are now chatting with the AI assistant again."
	TextWelcome    = "I'm here to continue helping you. What would you like to know?"
	TextHeldForAgent = "We're still connecting you to an agent. Your message has been saved and will be shared when an agent connects."
	TextAIError      = "Error generating response. Please try again later."
	TextIdleClosed   = "This chat was closed after 10 minutes of inactivity."
)

// agentRequestPhrases trigger handoff when found (case-insensitive) in user
// input.
var agentRequestPhrases = []string{
	"speak to agent",
	"talk to agent",
	"connect to agent",
	"speak to human",
	"talk to human",
	"connect to human",
	"connect me to an agent",
	"connect me to a human",
}

// IsAgentRequestPhrase reports whether text asks for a human agent.
func IsAgentRequestPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range agentRequestPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// State is the reducer state of one room as seen by its customer.
type State struct {
	Status    model.RoomStatus
	AgentName string
}

// NewState returns the initial state: AI-handled.
func NewState() State {
	return State{Status: model.StatusAIOnly}
}

// Input is a state-machine trigger. Inputs that may resume AI processing
// carry the most recent unanswered user message, resolved by the caller from
// the reconciler so the reducer stays pure.
type Input interface{ isInput() }

// RequestAgent: explicit user action, detected phrase, or an AI reply flagged
// for handoff.
type RequestAgent struct{}

// AgentJoined: the coordinator attached an agent to the room.
type AgentJoined struct{ AgentName string }

// AgentLeft: the attached agent departed.
type AgentLeft struct{ Pending *model.Message }

// NoAgents: the coordinator found no online agent for the request.
type NoAgents struct{ Pending *model.Message }

// Leave: explicit exit, logout, or inactivity timeout.
type Leave struct{ Reason model.LeaveReason }

func (RequestAgent) isInput() {}
func (AgentJoined) isInput()  {}
func (AgentLeft) isInput()    {}
func (NoAgents) isInput()     {}
func (Leave) isInput()        {}

// Effect is a side effect a transition asks the session to execute. Effects
// are plain values so the machine is testable without a live transport.
type Effect interface{ isEffect() }

// AppendSystem renders a system message.
type AppendSystem struct{ Content string }

// AppendAssistant renders an assistant message without an AI round-trip.
type AppendAssistant struct{ Content string }

// EmitRequestAgent sends one room-scoped request_agent broadcast carrying the
// transcript so far.
type EmitRequestAgent struct{}

// ResumeAI re-submits a pending user message to the AI backend.
type ResumeAI struct{ Content string }

// CloseRoom tears down the room and its inactivity timer.
type CloseRoom struct{ Reason model.LeaveReason }

func (AppendSystem) isEffect()     {}
func (AppendAssistant) isEffect()  {}
func (EmitRequestAgent) isEffect() {}
func (ResumeAI) isEffect()         {}
func (CloseRoom) isEffect()        {}

// Reduce applies one input to the state and returns the next state plus the
// side effects to execute. Transitions are level-triggered on the latest
// known state: re-delivered events that match the current state produce no
// effects, so duplicates are harmless.
func Reduce(s State, in Input) (State, []Effect) {
	if s.Status == model.StatusClosed {
		return s, nil
	}

	switch ev := in.(type) {
	case RequestAgent:
		if s.Status != model.StatusAIOnly {
			return s, nil
		}
		s.Status = model.StatusAwaitingAgent
		return s, []Effect{
			AppendSystem{Content: TextConnecting},
			EmitRequestAgent{},
		}

	case AgentJoined:
		if s.Status == model.StatusAgentConnected {
			// Duplicate join for the room we are already in: no second
			// announcement.
			return s, nil
		}
		s.Status = model.StatusAgentConnected
		name := ev.AgentName
		if name == "" {
			name = "Support Agent"
		}
		s.AgentName = name
		return s, []Effect{AppendSystem{Content: name + " has joined the chat."}}

	case AgentLeft:
		if s.Status != model.StatusAgentConnected {
			return s, nil
		}
		s.Status = model.StatusAIOnly
		s.AgentName = ""
		effects := []Effect{AppendSystem{Content: TextAgentLeft}}
		if ev.Pending != nil {
			effects = append(effects, ResumeAI{Content: ev.Pending.Content})
		} else {
			effects = append(effects, AppendAssistant{Content: TextWelcome})
		}
		return s, effects

	case NoAgents:
		if s.Status != model.StatusAwaitingAgent {
			return s, nil
		}
		s.Status = model.StatusAIOnly
		effects := []Effect{AppendSystem{Content: TextNoAgents}}
		if ev.Pending != nil {
			effects = append(effects, ResumeAI{Content: ev.Pending.Content})
		}
		return s, effects

	case Leave:
		s.Status = model.StatusClosed
		s.AgentName = ""
		return s, []Effect{CloseRoom{Reason: ev.Reason}}
	}

	return s, nil
}
