package memory

import (
	"context"
	"sync"

	"github.com/livechat/internal/model"
	"github.com/livechat/internal/push"
)

const maxSubsPerAgent = 10

// Client is the in-process PresenceStore used by -dev runs and tests.
type Client struct {
	mu     sync.RWMutex
	status map[string]model.AgentStatus
	subs   map[string][]push.Subscription
}

func New() *Client {
	return &Client{
		status: make(map[string]model.AgentStatus),
		subs:   make(map[string][]push.Subscription),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetAgentStatus(ctx context.Context, agentID string, status model.AgentStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[agentID] = status
	return nil
}

func (c *Client) AgentStatus(ctx context.Context, agentID string) (model.AgentStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.status[agentID]
	if !ok {
		return model.AgentOffline, nil
	}
	return s, nil
}

func (c *Client) OnlineAgentIDs(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, s := range c.status {
		if s == model.AgentOnline {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) SaveSubscription(ctx context.Context, agentID string, sub push.Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.subs[agentID][:0:0]
	for _, s := range c.subs[agentID] {
		if s.Endpoint != sub.Endpoint {
			kept = append(kept, s)
		}
	}
	kept = append(kept, sub)
	if len(kept) > maxSubsPerAgent {
		kept = kept[len(kept)-maxSubsPerAgent:]
	}
	c.subs[agentID] = kept
	return nil
}

func (c *Client) Subscriptions(ctx context.Context, agentID string) ([]push.Subscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]push.Subscription, len(c.subs[agentID]))
	copy(out, c.subs[agentID])
	return out, nil
}

func (c *Client) RemoveSubscription(ctx context.Context, agentID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.subs[agentID][:0:0]
	for _, s := range c.subs[agentID] {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	c.subs[agentID] = kept
	return nil
}
