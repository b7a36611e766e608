// Package ws is the client-side transport: it dials the coordinator's
// websocket endpoint and exposes the connection as an event.Channel with
// automatic reconnection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/livechat/internal/event"
	"github.com/livechat/internal/logger"
)

const (
	writeWait         = 10 * time.Second
	reconnectAttempts = 5
	reconnectDelay    = time.Second
	eventBufSize      = 64
)

// ErrDisconnected is returned by Send while no connection is up.
var ErrDisconnected = errors.New("ws: not connected")

// Dialer is an event.Channel over a websocket connection to the coordinator.
// Each connection attempt presents a fresh connection id; sessions observe
// reconnects through connect/disconnect events and refetch state themselves.
type Dialer struct {
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	connID string

	events chan event.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Dial starts the channel. The first connection is established asynchronously;
// callers wait for the connect event rather than blocking here.
func Dial(ctx context.Context, rawURL string) (*Dialer, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("ws: parse url: %w", err)
	}
	d := &Dialer{
		url:    rawURL,
		events: make(chan event.Event, eventBufSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.manage(ctx)
	return d, nil
}

func (d *Dialer) Events() <-chan event.Event { return d.events }

func (d *Dialer) ConnectionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connID
}

// Send transmits one event. Serialized: gorilla permits a single writer.
func (d *Dialer) Send(ctx context.Context, ev event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return ErrDisconnected
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ws: marshal %s: %w", ev.Type, err)
	}
	deadline := time.Now().Add(writeWait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("ws: set write deadline: %w", err)
	}
	if err := d.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("ws: write %s: %w", ev.Type, err)
	}
	return nil
}

// Close tears the channel down and closes Events. Idempotent.
func (d *Dialer) Close() error {
	d.once.Do(func() {
		close(d.done)
		d.mu.Lock()
		if d.conn != nil {
			d.conn.Close()
		}
		d.mu.Unlock()
		go func() {
			d.wg.Wait()
			close(d.events)
		}()
	})
	return nil
}

// manage owns the connect-read-reconnect cycle.
func (d *Dialer) manage(ctx context.Context) {
	defer d.wg.Done()
	for {
		conn, connID, ok := d.connect(ctx)
		if !ok {
			return
		}

		d.mu.Lock()
		d.conn = conn
		d.connID = connID
		d.mu.Unlock()
		d.emit(event.Event{Type: event.TypeConnect})

		d.readLoop(conn)

		d.mu.Lock()
		d.conn = nil
		d.connID = ""
		d.mu.Unlock()
		conn.Close()

		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		d.emit(event.Event{Type: event.TypeDisconnect})
	}
}

// connect tries up to reconnectAttempts times, a fresh connection id per
// attempt. ok is false when the channel is closed or attempts are exhausted.
func (d *Dialer) connect(ctx context.Context) (conn *websocket.Conn, connID string, ok bool) {
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-d.done:
			return nil, "", false
		case <-ctx.Done():
			return nil, "", false
		default:
		}

		connID = uuid.NewString()
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.withConnID(connID), nil)
		if err == nil {
			return conn, connID, true
		}
		logger.Errorf("ws dial attempt %d/%d: %v", attempt, reconnectAttempts, err)
		d.emit(event.Event{Type: event.TypeConnectError})

		select {
		case <-d.done:
			return nil, "", false
		case <-ctx.Done():
			return nil, "", false
		case <-time.After(reconnectDelay):
		}
	}
	return nil, "", false
}

func (d *Dialer) withConnID(connID string) string {
	u, err := url.Parse(d.url)
	if err != nil {
		return d.url
	}
	q := u.Query()
	q.Set("conn_id", connID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *Dialer) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read: %v", err)
			}
			return
		}
		var ev event.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Errorf("ws unmarshal: %v", err)
			continue
		}
		d.emit(ev)
	}
}

func (d *Dialer) emit(ev event.Event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}
