package storage

import (
	"context"

	"github.com/livechat/internal/model"
	"github.com/livechat/internal/push"
)

// PresenceStore caches agent availability and holds their Web Push
// subscriptions. Implementations: redis.Client, memory.Client (for -dev
// without Redis). Durable agent records stay in Postgres; this layer answers
// the hot "who is online right now" question.
type PresenceStore interface {
	SetAgentStatus(ctx context.Context, agentID string, status model.AgentStatus) error
	AgentStatus(ctx context.Context, agentID string) (model.AgentStatus, error)
	OnlineAgentIDs(ctx context.Context) ([]string, error)

	SaveSubscription(ctx context.Context, agentID string, sub push.Subscription) error
	Subscriptions(ctx context.Context, agentID string) ([]push.Subscription, error)
	RemoveSubscription(ctx context.Context, agentID, endpoint string) error

	Close() error
}
