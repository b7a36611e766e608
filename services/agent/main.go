// Command agent is the terminal agent console: watch the room queue, join a
// room, chat, toggle availability.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/livechat/internal/agentapi"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
	"github.com/livechat/internal/notify"
	"github.com/livechat/internal/session"
	"github.com/livechat/internal/ws"
)

func main() {
	logger.SetPrefix("agent")
	server := flag.String("server", envOr("HUB_WS_URL", "ws://localhost:8080/ws"), "hub websocket URL")
	apiURL := flag.String("api", envOr("HUB_API_URL", "http://localhost:8080"), "hub REST base URL")
	name := flag.String("name", envOr("AGENT_NAME", "Support Agent"), "agent display name")
	token := flag.String("token", envOr("AGENT_TOKEN", ""), "bearer token for the status endpoint")
	flag.Parse()

	prefs, err := notify.LoadPreferences(notify.DefaultPreferencesPath())
	if err != nil {
		logger.Errorf("notification preferences: %v (using defaults)", err)
	}
	dispatcher := notify.NewDispatcher(prefs, bellPlayer{out: os.Stdout})

	channel, err := ws.Dial(context.Background(), *server)
	if err != nil {
		logger.Errorf("dial %s: %v", *server, err)
		os.Exit(1)
	}

	sink := &consoleSink{out: os.Stdout}
	agent := session.NewAgent(session.AgentConfig{
		Channel:    channel,
		Status:     agentapi.NewClient(*apiURL, *token),
		Dispatcher: dispatcher,
		Sink:       sink,
		AgentName:  *name,
	})
	agent.Open()
	fmt.Println("commands: /rooms /join N /leave /toggle /notify /logout")

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

	logout := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		agent.Logout(ctx)
		cancel()
		channel.Close()
	}

	for {
		select {
		case <-quit:
			logout()
			return
		case line, ok := <-lines:
			if !ok {
				logout()
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/rooms":
				sink.printRooms(agent.Rooms())
			case strings.HasPrefix(line, "/join"):
				n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/join")))
				rooms := agent.Rooms()
				if err != nil || n < 1 || n > len(rooms) {
					fmt.Println("usage: /join N (see /rooms)")
					continue
				}
				agent.JoinRoom(rooms[n-1])
			case line == "/leave":
				agent.LeaveRoom(model.LeaveManualExit)
			case line == "/toggle":
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				agent.ToggleAvailability(ctx)
				cancel()
				if agent.Available() {
					fmt.Println("-- you are online --")
				} else {
					fmt.Println("-- you are busy --")
				}
			case strings.HasPrefix(line, "/notify"):
				out, err := applyNotifyCommand(dispatcher, notify.DefaultPreferencesPath(), strings.TrimPrefix(line, "/notify"))
				if err != nil {
					fmt.Println(err)
					continue
				}
				fmt.Println("-- " + out + " --")
			case line == "/logout" || line == "/quit":
				logout()
				return
			case strings.HasPrefix(line, "/"):
				fmt.Println("commands: /rooms /join N /leave /toggle /notify /logout")
			default:
				agent.SendMessage(line)
			}
		}
	}
}

// applyNotifyCommand handles "/notify [on|off|volume N|sound S]": it updates
// the dispatcher and persists the result to path. Without arguments it only
// reports the current settings.
func applyNotifyCommand(d *notify.Dispatcher, path, args string) (string, error) {
	p := d.Preferences()
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return notifySummary(p), nil
	}
	switch fields[0] {
	case "on":
		p.Enabled = true
	case "off":
		p.Enabled = false
	case "volume":
		if len(fields) < 2 {
			return "", errors.New("usage: /notify volume N (0-100)")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", errors.New("usage: /notify volume N (0-100)")
		}
		p.Volume = n
	case "sound":
		if len(fields) < 2 {
			return "", errors.New("usage: /notify sound default|chime|bell")
		}
		switch s := notify.Sound(fields[1]); s {
		case notify.SoundDefault, notify.SoundChime, notify.SoundBell:
			p.Sound = s
		default:
			return "", errors.New("usage: /notify sound default|chime|bell")
		}
	default:
		return "", errors.New("usage: /notify [on|off|volume N|sound default|chime|bell]")
	}
	d.SetPreferences(p)
	if err := notify.SavePreferences(path, d.Preferences()); err != nil {
		return "", err
	}
	return notifySummary(d.Preferences()), nil
}

func notifySummary(p notify.Preferences) string {
	state := "on"
	if !p.Enabled {
		state = "off"
	}
	return fmt.Sprintf("notifications %s, volume %d, sound %s", state, p.Volume, p.Sound)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// bellPlayer is the terminal Player: it rings the bell. Volume zero stays
// silent; the terminal has no volume control beyond that.
type bellPlayer struct {
	out *os.File
}

func (p bellPlayer) Play(sound notify.Sound, volume float64) error {
	if volume <= 0 {
		return nil
	}
	_, err := p.out.WriteString("\a")
	return err
}

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
		if s.seen[key] || m.Typing {
			continue
		}
		s.seen[key] = true
		fmt.Fprintf(s.out, "[%s] %s\n", label(m), m.Content)
	}
}

func (s *consoleSink) StatusChanged(status model.RoomStatus) {
	fmt.Fprintf(s.out, "-- room: %s --\n", status)
}

func (s *consoleSink) Toast(level session.ToastLevel, text string) {
	fmt.Fprintf(s.out, "(%s) %s\n", level, text)
}

func (s *consoleSink) RoomsChanged(rooms []model.RoomSummary) {
	fmt.Fprintf(s.out, "-- %d room(s) waiting, /rooms to list --\n", len(rooms))
}

func (s *consoleSink) printRooms(rooms []model.RoomSummary) {
	if len(rooms) == 0 {
		fmt.Fprintln(s.out, "no rooms waiting")
		return
	}
	for i, room := range rooms {
		marker := " "
		if room.Active {
			marker = "*"
		} else if room.Unread {
			marker = "!"
		}
		fmt.Fprintf(s.out, "%s %d. %s (%s) %s\n", marker, i+1, room.UserName, room.WaitTime, room.LastMessage)
	}
}

func label(m *model.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	switch m.Role {
	case model.RoleAssistant:
		return "AI"
	case model.RoleAgent:
		return "me"
	case model.RoleSystem:
		return "system"
	default:
		return "customer"
	}
}
