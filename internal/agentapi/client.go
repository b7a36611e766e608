// Package agentapi is the authenticated collaborator that persists an
// agent's availability. The presence toggle is write-through: local state
// only changes after this call succeeds.
package agentapi

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

// Client calls the agent status endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client. token is sent as a bearer credential.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type statusRequest struct {
	Status model.AgentStatus `json:"status"`
}

// StatusResult is the collaborator's verdict.
type StatusResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// UpdateStatus persists the agent's availability. A non-success result or a
// transport error means the caller must leave local presence untouched.
func (c *Client) UpdateStatus(ctx context.Context, status model.AgentStatus) (*StatusResult, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("agentapi: invalid status %q", status)
	}
	body, err := json.Marshal(statusRequest{Status: status})
	if err != nil {
		return nil, fmt.Errorf("agentapi: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/agent/status", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agentapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agentapi: update status: %w", err)
	}
	defer resp.Body.Close()

	var out StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("agentapi: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && out.Error == "" {
		out.Success = false
		out.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return &out, nil
}
