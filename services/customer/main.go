// Command customer is the terminal customer console: chat with the AI
// assistant, escalate to a human agent, leave.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/livechat/internal/ai"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
	"github.com/livechat/internal/session"
	"github.com/livechat/internal/ws"
)

func main() {
	logger.SetPrefix("customer")
	server := flag.String("server", envOr("HUB_WS_URL", "ws://localhost:8080/ws"), "hub websocket URL")
	aiURL := flag.String("ai", envOr("AI_SERVICE_URL", ""), "AI backend base URL (empty disables AI replies)")
	name := flag.String("name", envOr("USER_NAME", "Customer"), "display name")
	flag.Parse()

	channel, err := ws.Dial(context.Background(), *server)
	if err != nil {
		logger.Errorf("dial %s: %v", *server, err)
		os.Exit(1)
	}

	sink := &consoleSink{out: os.Stdout}
	cust := session.NewCustomer(session.CustomerConfig{
		Channel:  channel,
		AI:       ai.NewClient(*aiURL),
		Sink:     sink,
		UserName: *name,
		Greeting: "Hi! I'm your AI assistant. How can I help you today? If you'd like to talk to a human agent, just ask.",
	})
	cust.Open()
	fmt.Printf("room %s. Type a message, /agent to request a human, /leave to exit.\n", cust.RoomID())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-quit:
			cust.Leave(model.LeaveManualExit)
			cust.Close()
			channel.Close()
			return
		case line, ok := <-lines:
			if !ok {
				cust.Close()
				channel.Close()
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/agent":
				cust.RequestAgent()
			case line == "/leave" || line == "/quit":
				cust.Leave(model.LeaveManualExit)
				cust.Close()
				channel.Close()
				return
			case strings.HasPrefix(line, "/"):
				fmt.Println("commands: /agent /leave")
			default:
				cust.Send(line)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// consoleSink renders session output to the terminal: new messages as they
// land, status transitions and toasts.
type consoleSink struct {
	mu   sync.Mutex
	out  *os.File
	seen map[model.Key]bool
}

func (s *consoleSink) MessagesChanged(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[model.Key]bool)
	}
	for i := range msgs {
		m := &msgs[i]
		key := m.IdentityKey()
		if s.seen[key] {
			continue
		}
		if m.Typing {
			continue
		}
		s.seen[key] = true
		fmt.Fprintf(s.out, "[%s] %s\n", label(m), m.Content)
	}
}

func (s *consoleSink) StatusChanged(status model.RoomStatus) {
	fmt.Fprintf(s.out, "-- status: %s --\n", status)
}

func (s *consoleSink) Toast(level session.ToastLevel, text string) {
	fmt.Fprintf(s.out, "(%s) %s\n", level, text)
}

func label(m *model.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	switch m.Role {
	case model.RoleAssistant:
		return "AI"
	case model.RoleAgent:
		return "agent"
	case model.RoleSystem:
		return "system"
	default:
		return "you"
	}
}
