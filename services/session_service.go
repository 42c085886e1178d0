package services

import (
	"context"
	"fmt"
	"log/slog"
	"relaychat/codec"
	"relaychat/contract"
	"relaychat/domain"
	"relaychat/errors"
	"relaychat/observability"
	"relaychat/runtime"
	"relaychat/runtime/workers"
	"strings"
	"sync/atomic"
	"time"
)

const defaultLoopBuffer = 64

type ISession interface {
	Connect(ctx context.Context, req ConnectRequest) error
	Disconnect(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	ToggleAudio(ctx context.Context) (bool, error)
	ToggleVideo(ctx context.Context) (bool, error)
	ToggleScreenShare(ctx context.Context) (bool, error)
	View() View
	OnStateChanged(fn func(runtime.StateEvent))
	OnMessage(fn func(domain.Message))
}

// ConnectRequest carries the caller's connect parameters. Token is optional.
type ConnectRequest struct {
	ServerURL   string
	Room        string
	Identity    string
	DisplayName string
	Token       string
}

// View is an immutable snapshot of the session, consistent with the state
// machine as of the end of one loop step. Callers must not modify its slices.
type View struct {
	Status           domain.Status
	Room             string
	LocalParticipant *domain.Participant
	Participants     []domain.Participant
	Messages         []domain.Message
	LastError        string
	Attempt          int
}

type SessionConfig struct {
	Backoff        runtime.Backoff
	ConnectTimeout time.Duration
	TokenTimeout   time.Duration
	SendTimeout    time.Duration
	Scheduler      runtime.Scheduler // nil means wall clock
	Now            func() time.Time  // nil means time.Now
	Sink           contract.TranscriptSink
	Metrics        *observability.SessionMetrics
}

type notification struct {
	state   *runtime.StateEvent
	message *domain.Message
	joined  *domain.Participant
}

// Session is the public surface of one chat session. Its operations are
// safe for concurrent use; they are serialized on the session loop.
// Run must be running for any operation to complete.
type Session struct {
	log     *slog.Logger
	loop    *runtime.Loop
	machine *runtime.Machine
	roster  *domain.Roster
	room    *domain.Room
	ids     *domain.IDGenerator
	sink    contract.TranscriptSink
	metrics *observability.SessionMetrics
	fanout  *workers.EventFanout[notification]
	view    atomic.Pointer[View]
}

func NewSession(log *slog.Logger, transport contract.Transport, tokens contract.TokenSource, cfg SessionConfig) *Session {
	loop := runtime.NewLoop(defaultLoopBuffer)
	machine := runtime.NewMachine(log, loop, transport, tokens, runtime.MachineConfig{
		Backoff:        cfg.Backoff,
		ConnectTimeout: cfg.ConnectTimeout,
		TokenTimeout:   cfg.TokenTimeout,
		SendTimeout:    cfg.SendTimeout,
	})
	s := &Session{
		log:     log,
		loop:    loop,
		machine: machine,
		roster:  domain.NewRoster(),
		room:    domain.NewRoom(""),
		ids:     domain.NewIDGenerator(cfg.Now),
		sink:    cfg.Sink,
		metrics: cfg.Metrics,
		fanout:  workers.NewEventFanout[notification](log),
	}
	machine.SetScheduler(cfg.Scheduler)
	machine.SetHooks(s)
	machine.SetMetrics(cfg.Metrics)
	machine.OnStateChanged(func(ev runtime.StateEvent) {
		s.fanout.Publish(notification{state: &ev})
	})
	loop.AfterEach(s.publish)
	s.publish()
	return s
}

// Run drives the session until ctx is done, then tears down whatever
// session is still open. A Session cannot be restarted once Run returns.
func (s *Session) Run(ctx context.Context) error {
	fanoutCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = s.fanout.Run(fanoutCtx) }()

	err := s.loop.Run(ctx)
	s.loop.Stop()
	// The loop goroutine is gone: this goroutine is now the only writer.
	s.machine.Disconnect()
	s.publish()
	s.log.Debug("Session stopped", "reason", err)
	return nil
}

// Close stops a running session.
func (s *Session) Close() {
	s.loop.Stop()
}

// Connect starts a session. It returns configuration errors synchronously;
// transport and credential failures are reported through the view and
// OnStateChanged. Calling it while a session is active is a no-op.
func (s *Session) Connect(ctx context.Context, req ConnectRequest) error {
	params := runtime.Params{
		ServerURL:   strings.TrimSpace(req.ServerURL),
		Room:        strings.TrimSpace(req.Room),
		Identity:    strings.TrimSpace(req.Identity),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Token:       req.Token,
	}
	var err error
	if doErr := s.loop.Do(ctx, func() { err = s.machine.Connect(params) }); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) Disconnect(ctx context.Context) error {
	return s.loop.Do(ctx, s.machine.Disconnect)
}

// SendMessage encodes text, queues it for the transport and appends it to
// the log. It never waits for the network.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	var err error
	doErr := s.loop.Do(ctx, func() { err = s.sendMessage(text) })
	if doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) sendMessage(text string) error {
	if s.machine.Status() != domain.StatusConnected {
		return errors.Wrap(errors.KindSend, "cannot send", errors.ErrNotConnected)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.Wrap(errors.KindSend, "cannot send", errors.ErrEmptyMessage)
	}
	local, ok := s.roster.Local()
	if !ok {
		return errors.Wrap(errors.KindSend, "cannot send", errors.ErrNotConnected)
	}

	message := s.ids.NewTextMessage(domain.SenderOf(local), text)
	payload, err := codec.EncodeAt(text, local.Identity, message.Timestamp)
	if err != nil {
		return errors.Wrap(errors.KindSend, "encode failed", err)
	}
	if err := s.machine.Send(payload); err != nil {
		return err
	}
	s.metrics.MessageSent(context.Background())
	s.appendMessage(message)
	return nil
}

// ToggleAudio flips the local audio flag. The data-only profile negotiates
// no media, so this is a local state change only.
func (s *Session) ToggleAudio(ctx context.Context) (bool, error) {
	return s.toggle(ctx, func(c *domain.Capabilities) *bool { return &c.Audio })
}

func (s *Session) ToggleVideo(ctx context.Context) (bool, error) {
	return s.toggle(ctx, func(c *domain.Capabilities) *bool { return &c.Video })
}

func (s *Session) ToggleScreenShare(ctx context.Context) (bool, error) {
	return s.toggle(ctx, func(c *domain.Capabilities) *bool { return &c.ScreenShare })
}

func (s *Session) toggle(ctx context.Context, flag func(*domain.Capabilities) *bool) (bool, error) {
	var (
		enabled bool
		err     error
	)
	doErr := s.loop.Do(ctx, func() {
		if s.machine.Status() != domain.StatusConnected {
			err = errors.ErrNotConnected
			return
		}
		s.roster.UpdateLocal(func(p *domain.Participant) {
			f := flag(&p.Capabilities)
			*f = !*f
			enabled = *f
		})
	})
	if doErr != nil {
		return false, doErr
	}
	return enabled, err
}

// View returns the latest published snapshot.
func (s *Session) View() View {
	return *s.view.Load()
}

// OnStateChanged registers an observer for every state transition.
// Observers run on a dedicated goroutine, in transition order.
func (s *Session) OnStateChanged(fn func(runtime.StateEvent)) {
	s.fanout.Subscribe(func(n notification) {
		if n.state != nil {
			fn(*n.state)
		}
	})
}

// OnMessage registers an observer for every message appended to the log.
func (s *Session) OnMessage(fn func(domain.Message)) {
	s.fanout.Subscribe(func(n notification) {
		if n.message != nil {
			fn(*n.message)
		}
	})
}

// OnParticipantJoined registers an observer for remote participants joining
// after the session started. The connect-time roster is not replayed.
func (s *Session) OnParticipantJoined(fn func(domain.Participant)) {
	s.fanout.Subscribe(func(n notification) {
		if n.joined != nil {
			fn(*n.joined)
		}
	})
}

// SessionStarted seeds the roster from the transport snapshot.
func (s *Session) SessionStarted(params runtime.Params, local domain.Participant, remotes []domain.Participant, resumed bool) {
	if local.DisplayName == "" {
		local.DisplayName = params.DisplayName
	}
	if previous, ok := s.roster.Local(); ok && resumed {
		local.Capabilities = previous.Capabilities
	}
	s.roster.Seed(local, remotes)

	if !resumed {
		s.room.Reset(params.Room)
		s.appendMessage(s.ids.NewSystemMessage(
			fmt.Sprintf("Welcome to %s, %s", params.Room, local.Name())))
		return
	}
	s.appendMessage(s.ids.NewSystemMessage(fmt.Sprintf("Reconnected to %s", params.Room)))
}

// SessionEvent applies membership, data and quality events.
func (s *Session) SessionEvent(ev contract.Event) {
	ctx := context.Background()
	switch ev.Kind {
	case contract.EventParticipantJoined:
		if s.roster.Add(ev.Participant) {
			s.metrics.ParticipantEvent(ctx, ev.Kind.String())
			s.appendMessage(s.ids.NewSystemMessage(fmt.Sprintf("%s joined the room", ev.Participant.Name())))
			joined := ev.Participant
			s.fanout.Publish(notification{joined: &joined})
		}
	case contract.EventParticipantLeft:
		if p, ok := s.roster.Remove(ev.Participant.ID); ok {
			s.metrics.ParticipantEvent(ctx, ev.Kind.String())
			s.appendMessage(s.ids.NewSystemMessage(fmt.Sprintf("%s left the room", p.Name())))
		}
	case contract.EventDataReceived:
		s.receive(ctx, ev)
	case contract.EventQualityChanged:
		s.roster.SetQuality(ev.Participant.ID, ev.Quality)
	case contract.EventDisconnected:
		s.appendMessage(s.ids.NewSystemMessage(
			fmt.Sprintf("Connection lost (%s), reconnecting", ev.Reason)))
	}
}

func (s *Session) receive(ctx context.Context, ev contract.Event) {
	frame, ok := codec.Decode(ev.Data)
	if !ok {
		s.metrics.FrameDropped(ctx)
		s.log.Debug("Dropping unrecognized frame", "from", ev.Participant.ID, "size", len(ev.Data))
		return
	}
	sender, known := s.roster.Lookup(ev.Participant.ID)
	if !known {
		sender = ev.Participant
	}
	if sender.Identity == "" {
		sender.Identity = frame.Sender
	}
	s.metrics.MessageReceived(ctx)
	s.appendMessage(s.ids.NewTextMessageAt(domain.SenderOf(sender), frame.Content, frame.Time()))
}

// SessionEnded drops the roster. The log survives a failed session so the
// user can still read it, and is cleared on an explicit reset.
func (s *Session) SessionEnded(reset bool) {
	s.roster.Clear()
	if reset {
		s.room.Reset("")
	}
}

func (s *Session) appendMessage(message domain.Message) {
	s.room.PostMessage(message)
	if s.sink != nil {
		if err := s.sink.Append(s.room.Name, message); err != nil {
			s.log.Warn("Transcript append failed", "room", s.room.Name, "error", err)
		}
	}
	s.fanout.Publish(notification{message: &message})
}

// publish rebuilds the view. It runs on the loop after every op.
func (s *Session) publish() {
	view := View{
		Status:       s.machine.Status(),
		Room:         s.room.Name,
		Participants: s.roster.Snapshot(),
		Messages:     s.room.Messages(),
		Attempt:      s.machine.Attempt(),
	}
	if local, ok := s.roster.Local(); ok {
		view.LocalParticipant = &local
	}
	if err := s.machine.LastError(); err != nil {
		view.LastError = err.Error()
	}
	if view.Room == "" {
		view.Room = s.machine.Params().Room
	}
	s.view.Store(&view)
}
