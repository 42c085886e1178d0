package main

import (
	"context"
	"fmt"
	"io"
	"relaychat/domain"
	"relaychat/runtime"
	"relaychat/services"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const helpText = `Commands:
  /who          list the participants
  /mic /cam /screen  toggle local audio, video or screen share
  /history [n]  replay the last n messages of this room
  /reconnect    connect again with the last parameters
  /leave        disconnect
  /quit         leave and exit
Anything else is sent to the room.`

type historySource interface {
	History(room string, n int) ([]domain.Message, error)
}

// Terminal renders a session on a line oriented terminal and turns input
// lines into session operations.
type Terminal struct {
	mu          sync.Mutex
	out         io.Writer
	session     services.ISession
	history     historySource
	request     services.ConnectRequest
	historySize int
}

func NewTerminal(out io.Writer, session services.ISession, history historySource, request services.ConnectRequest, historySize int) *Terminal {
	return &Terminal{
		out:         out,
		session:     session,
		history:     history,
		request:     request,
		historySize: historySize,
	}
}

// Attach subscribes the terminal to the session notifications.
func (t *Terminal) Attach() {
	t.session.OnMessage(func(m domain.Message) { t.println(formatMessage(m)) })
	t.session.OnStateChanged(func(ev runtime.StateEvent) { t.println(formatState(ev)) })
}

// Connect joins the configured room.
func (t *Terminal) Connect(ctx context.Context) error {
	t.println(color.FgGray.Render(fmt.Sprintf("Joining %s as %s...", t.request.Room, t.request.Identity)))
	return t.session.Connect(ctx, t.request)
}

// Handle runs one input line. It returns true when the user asked to quit.
func (t *Terminal) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, t.session.SendMessage(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/exit":
		return true, t.session.Disconnect(ctx)
	case "/leave":
		return false, t.session.Disconnect(ctx)
	case "/reconnect":
		return false, t.session.Connect(ctx, t.request)
	case "/who":
		t.who()
	case "/mic":
		return false, t.toggle(ctx, "Microphone", t.session.ToggleAudio)
	case "/cam":
		return false, t.toggle(ctx, "Camera", t.session.ToggleVideo)
	case "/screen":
		return false, t.toggle(ctx, "Screen share", t.session.ToggleScreenShare)
	case "/history":
		return false, t.replay(strings.TrimSpace(arg))
	case "/help":
		t.println(helpText)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", command)
	}
	return false, nil
}

func (t *Terminal) toggle(ctx context.Context, label string, fn func(context.Context) (bool, error)) error {
	enabled, err := fn(ctx)
	if err != nil {
		return err
	}
	t.println(color.FgGray.Render(fmt.Sprintf("%s %s", label, lo.Ternary(enabled, "on", "off"))))
	return nil
}

func (t *Terminal) who() {
	view := t.session.View()
	if len(view.Participants) == 0 {
		t.println(color.FgGray.Render(fmt.Sprintf("Nobody here (%s)", view.Status)))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	table := tablewriter.NewWriter(t.out)
	table.SetHeader([]string{"Name", "Identity", "Quality", "Joined", "Media"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	for _, p := range view.Participants {
		name := p.Name()
		if p.IsLocal {
			name += " (you)"
		}
		table.Append([]string{
			name,
			p.Identity,
			string(p.Quality),
			p.JoinedAt.Local().Format(time.TimeOnly),
			media(p),
		})
	}
	table.Render()
}

func (t *Terminal) replay(arg string) error {
	n := t.historySize
	if arg != "" {
		if _, err := fmt.Sscanf(arg, "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("usage: /history [n], got %q", arg)
		}
	}
	room := t.session.View().Room
	if room == "" {
		room = t.request.Room
	}
	messages, err := t.history.History(room, n)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	t.println(color.FgGray.Render(fmt.Sprintf("--- last %d messages of %s ---", len(messages), room)))
	for _, m := range messages {
		t.println(formatMessage(m))
	}
	return nil
}

func (t *Terminal) println(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.out, line)
}

func media(p domain.Participant) string {
	if !p.IsLocal {
		return ""
	}
	var on []string
	if p.Capabilities.Audio {
		on = append(on, "mic")
	}
	if p.Capabilities.Video {
		on = append(on, "cam")
	}
	if p.Capabilities.ScreenShare {
		on = append(on, "screen")
	}
	return strings.Join(on, ",")
}

func formatMessage(m domain.Message) string {
	at := m.Timestamp.Local().Format(time.TimeOnly)
	if m.Kind == domain.KindSystem {
		return color.FgGray.Render(fmt.Sprintf("[%s] * %s", at, m.Text))
	}
	name := m.Sender.DisplayName
	if name == "" {
		name = m.Sender.Identity
	}
	if m.Sender.IsLocal {
		return fmt.Sprintf("[%s] %s: %s", at, color.FgGreen.Render(name), m.Text)
	}
	return fmt.Sprintf("[%s] %s: %s", at, color.FgCyan.Render(name), m.Text)
}

func formatState(ev runtime.StateEvent) string {
	switch ev.NewStatus {
	case domain.StatusReconnecting:
		if ev.Delay > 0 {
			return color.FgYellow.Render(fmt.Sprintf("Reconnecting in %s (attempt %d)", ev.Delay, ev.Attempt))
		}
		return color.FgYellow.Render("Reconnecting")
	case domain.StatusError:
		msg := "Connection failed"
		if ev.Error != nil {
			msg = fmt.Sprintf("%s: %v", msg, ev.Error)
		}
		return color.FgRed.Render(msg + ", type /reconnect to retry")
	default:
		return color.FgGray.Render(fmt.Sprintf("Status: %s", ev.NewStatus))
	}
}
