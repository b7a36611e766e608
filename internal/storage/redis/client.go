package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/livechat/internal/model"
	"github.com/livechat/internal/push"
)

const (
	statusKeyPrefix = "presence:agent:"
	onlineSetKey    = "presence:online"
	subsKeyPrefix   = "push:subs:"

	// Status entries expire on their own so a crashed hub does not leave
	// agents online forever.
	statusTTL       = 24 * time.Hour
	subscriptionTTL = 30 * 24 * time.Hour
	maxSubsPerAgent = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetAgentStatus(ctx context.Context, agentID string, status model.AgentStatus) error {
	if err := c.cli.Set(ctx, statusKeyPrefix+agentID, string(status), statusTTL).Err(); err != nil {
		return fmt.Errorf("redis set status: %w", err)
	}
	if status == model.AgentOnline {
		return c.cli.SAdd(ctx, onlineSetKey, agentID).Err()
	}
	return c.cli.SRem(ctx, onlineSetKey, agentID).Err()
}

// AgentStatus returns the cached status; a missing key reads as offline.
func (c *Client) AgentStatus(ctx context.Context, agentID string) (model.AgentStatus, error) {
	val, err := c.cli.Get(ctx, statusKeyPrefix+agentID).Result()
	if err == redis.Nil {
		return model.AgentOffline, nil
	}
	if err != nil {
		return model.AgentOffline, fmt.Errorf("redis get status: %w", err)
	}
	return model.AgentStatus(val), nil
}

func (c *Client) OnlineAgentIDs(ctx context.Context) ([]string, error) {
	ids, err := c.cli.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis online agents: %w", err)
	}
	return ids, nil
}

// SaveSubscription appends a subscription, replacing any existing entry with
// the same endpoint and capping the list per agent.
func (c *Client) SaveSubscription(ctx context.Context, agentID string, sub push.Subscription) error {
	key := subsKeyPrefix + agentID
	if err := c.removeByEndpoint(ctx, key, sub.Endpoint); err != nil {
		return err
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("redis marshal subscription: %w", err)
	}
	pipe := c.cli.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxSubsPerAgent, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save subscription: %w", err)
	}
	return nil
}

func (c *Client) Subscriptions(ctx context.Context, agentID string) ([]push.Subscription, error) {
	list, err := c.cli.LRange(ctx, subsKeyPrefix+agentID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis subscriptions: %w", err)
	}
	subs := make([]push.Subscription, 0, len(list))
	for _, raw := range list {
		var sub push.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (c *Client) RemoveSubscription(ctx context.Context, agentID, endpoint string) error {
	return c.removeByEndpoint(ctx, subsKeyPrefix+agentID, endpoint)
}

func (c *Client) removeByEndpoint(ctx context.Context, key, endpoint string) error {
	list, err := c.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis read subscriptions: %w", err)
	}
	for _, raw := range list {
		var sub push.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			continue
		}
		if sub.Endpoint == endpoint {
			if err := c.cli.LRem(ctx, key, 1, raw).Err(); err != nil {
				return fmt.Errorf("redis remove subscription: %w", err)
			}
		}
	}
	return nil
}
