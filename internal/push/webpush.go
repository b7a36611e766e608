// Package push delivers Web Push alerts to agents who are away from their
// console, and manages the VAPID keys that sign them.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Subscription is a browser push subscription as captured at subscribe time.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Notification is the payload shown by the service worker.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender signs and sends Web Push messages. A nil-options sender (no VAPID
// keys) silently drops everything, so callers never branch on configuration.
type Sender struct {
	opts *webpush.Options
}

// NewSender creates a sender. keys may be nil to disable sending.
func NewSender(keys *VAPIDKeys, subscriber string) *Sender {
	if keys == nil || keys.PublicKey == "" || keys.PrivateKey == "" {
		return &Sender{}
	}
	return &Sender{opts: &webpush.Options{
		Subscriber:      subscriber,
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		TTL:             30,
	}}
}

// Enabled reports whether the sender has keys to sign with.
func (s *Sender) Enabled() bool { return s.opts != nil }

// Send pushes one notification to one subscription. stale reports that the
// endpoint is gone (410/404) and the subscription should be dropped.
func (s *Sender) Send(ctx context.Context, sub Subscription, n Notification) (stale bool, err error) {
	if s.opts == nil {
		return false, nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("push: marshal payload: %w", err)
	}
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, s.opts)
	if err != nil {
		return false, fmt.Errorf("push: send: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == 410 || resp.StatusCode == 404 {
		return true, nil
	}
	return false, nil
}
