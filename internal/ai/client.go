// Package ai calls the text-generation backend. The backend owns prompt
// construction and handoff detection; this client only moves the request and
// response.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/livechat/internal/model"
)

// Client calls the AI generation endpoint. An empty base URL makes Generate
// fail cleanly; callers substitute the fixed error text either way.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// TurnMessage is one conversation turn sent to the backend.
type TurnMessage struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// GenerateRequest is the request body for /chat/generate.
type GenerateRequest struct {
	Messages []TurnMessage `json:"messages"`
}

// GenerateResponse is the backend's reply. NeedsAgentHandoff set means the
// model decided the conversation should move to a human agent.
type GenerateResponse struct {
	AIResponse        string `json:"aiResponse"`
	NeedsAgentHandoff bool   `json:"needsAgentHandoff"`
}

// Generate submits the conversation and returns the AI reply.
func (c *Client) Generate(ctx context.Context, messages []TurnMessage) (*GenerateResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("ai: no backend configured")
	}
	body, err := json.Marshal(GenerateRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("ai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai: generate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai: generate: status %d", resp.StatusCode)
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ai: decode response: %w", err)
	}
	return &out, nil
}

// Conversation builds the backend input from a room transcript: a tracking
// system turn followed by the user turns in order. Assistant, agent and
// system messages are not replayed to the model.
func Conversation(transcript []model.Message) []TurnMessage {
	turns := make([]TurnMessage, 0, len(transcript)+1)
	turns = append(turns, TurnMessage{Role: model.RoleSystem, Content: "ignore this but use it to keep track of conversation"})
	for _, m := range transcript {
		if m.Role == model.RoleUser {
			turns = append(turns, TurnMessage{Role: model.RoleUser, Content: m.Content})
		}
	}
	return turns
}
