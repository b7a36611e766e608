package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/livechat/internal/push"
	"github.com/livechat/internal/storage/memory"
)

const validSubscription = `{
	"agentId": "agent-1",
	"subscription": {
		"endpoint": "https://push.example/sub-1",
		"keys": {"p256dh": "pk", "auth": "ak"}
	}
}`

func TestPushSubscribe(t *testing.T) {
	store := memory.New()
	h := NewPushHandler(store, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/push/subscribe", strings.NewReader(validSubscription))
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	subs, _ := store.Subscriptions(context.Background(), "agent-1")
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/sub-1" {
		t.Fatalf("stored subscriptions = %+v", subs)
	}
}

func TestPushSubscribeRejectsIncomplete(t *testing.T) {
	h := NewPushHandler(memory.New(), nil)
	cases := []string{
		`{}`,
		`{"agentId": "agent-1"}`,
		`{"agentId": "agent-1", "subscription": {"endpoint": "https://push.example/x"}}`,
		`not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/push/subscribe", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Subscribe(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestPushUnsubscribe(t *testing.T) {
	store := memory.New()
	h := NewPushHandler(store, nil)

	var sub push.Subscription
	sub.Endpoint = "https://push.example/sub-1"
	sub.Keys.P256dh = "pk"
	sub.Keys.Auth = "ak"
	store.SaveSubscription(context.Background(), "agent-1", sub)

	body := `{"agentId": "agent-1", "endpoint": "https://push.example/sub-1"}`
	req := httptest.NewRequest(http.MethodDelete, "/api/push/subscribe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Unsubscribe(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	subs, _ := store.Subscriptions(context.Background(), "agent-1")
	if len(subs) != 0 {
		t.Fatalf("subscriptions after unsubscribe = %+v", subs)
	}
}

func TestPushVAPIDPublicKey(t *testing.T) {
	h := NewPushHandler(memory.New(), &push.VAPIDKeys{PublicKey: "pub", PrivateKey: "priv"})
	req := httptest.NewRequest(http.MethodGet, "/api/push/vapid-public-key", nil)
	rec := httptest.NewRecorder()
	h.VAPIDPublicKey(rec, req)

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["publicKey"] != "pub" {
		t.Fatalf("response = %s (%v)", rec.Body, err)
	}
}

func TestPushVAPIDPublicKeyDisabled(t *testing.T) {
	h := NewPushHandler(memory.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/push/vapid-public-key", nil)
	rec := httptest.NewRecorder()
	h.VAPIDPublicKey(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
