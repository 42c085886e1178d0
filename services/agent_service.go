package services

import (
	"context"
	"fmt"
	"log/slog"
	"relaychat/contract"
	"relaychat/domain"
	"relaychat/errors"
	"relaychat/runtime"
	"strings"
	"time"
)

const (
	defaultAgentInbox   = 32
	defaultMemorySize   = 10
	defaultReplyTimeout = 20 * time.Second
	defaultRejoinDelay  = 30 * time.Second

	apologyText = "Sorry, something went wrong while answering you. Please try again."
)

// AgentSession is the part of a Session the assistant drives.
type AgentSession interface {
	Connect(ctx context.Context, req ConnectRequest) error
	SendMessage(ctx context.Context, text string) error
	OnStateChanged(fn func(runtime.StateEvent))
	OnMessage(fn func(domain.Message))
	OnParticipantJoined(fn func(domain.Participant))
}

type AgentConfig struct {
	Request ConnectRequest
	// MemorySize is how many past exchanges of the asker go with a prompt.
	MemorySize   int
	ReplyTimeout time.Duration
	// RejoinDelay is the wait before joining again once the session gave up.
	RejoinDelay time.Duration
	Now         func() time.Time
}

type agentTask struct {
	welcome bool
	rejoin  bool
	greet   *domain.Participant
	message *domain.Message
}

// Agent is a room participant that answers chat messages. It greets people
// joining after it, answers every text message through a Responder and
// remembers each exchange per identity. Agent is a contract.Worker.
type Agent struct {
	log       *slog.Logger
	session   AgentSession
	responder contract.Responder
	memory    contract.ConversationMemory
	cfg       AgentConfig
	inbox     chan agentTask
}

// NewAgent subscribes to session. The session must not be running yet, or
// early notifications may be missed.
func NewAgent(log *slog.Logger, session AgentSession, responder contract.Responder,
	memory contract.ConversationMemory, cfg AgentConfig) *Agent {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = defaultMemorySize
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	if cfg.RejoinDelay <= 0 {
		cfg.RejoinDelay = defaultRejoinDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	a := &Agent{
		log:       log,
		session:   session,
		responder: responder,
		memory:    memory,
		cfg:       cfg,
		inbox:     make(chan agentTask, defaultAgentInbox),
	}
	session.OnStateChanged(a.stateChanged)
	session.OnMessage(a.messageAppended)
	session.OnParticipantJoined(func(p domain.Participant) {
		a.enqueue(agentTask{greet: &p})
	})
	return a
}

func (a *Agent) name() string {
	if a.cfg.Request.DisplayName != "" {
		return a.cfg.Request.DisplayName
	}
	return a.cfg.Request.Identity
}

// Run joins the room and answers until ctx is done. Invalid connect
// parameters are fatal to the worker.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.session.Connect(ctx, a.cfg.Request); err != nil {
		if errors.IsKind(err, errors.KindConfiguration) {
			return fmt.Errorf("%w: %w", errors.ErrWorkerFatal, err)
		}
		return err
	}
	a.log.Info("Assistant joining", "room", a.cfg.Request.Room, "identity", a.cfg.Request.Identity)

	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-a.inbox:
			a.handle(ctx, task)
		}
	}
}

// stateChanged and messageAppended run on the session fanout goroutine and
// only queue work.
func (a *Agent) stateChanged(ev runtime.StateEvent) {
	switch {
	case ev.NewStatus == domain.StatusConnected && ev.OldStatus == domain.StatusConnecting:
		a.enqueue(agentTask{welcome: true})
	case ev.NewStatus == domain.StatusError && ev.OldStatus != domain.StatusError:
		a.log.Warn("Assistant lost the room", "error", ev.Error)
		a.enqueue(agentTask{rejoin: true})
	}
}

func (a *Agent) messageAppended(m domain.Message) {
	if m.Kind != domain.KindText || m.Sender.IsLocal || m.Sender.Identity == a.cfg.Request.Identity {
		return
	}
	if strings.TrimSpace(m.Text) == "" {
		return
	}
	a.enqueue(agentTask{message: &m})
}

func (a *Agent) enqueue(task agentTask) {
	select {
	case a.inbox <- task:
	default:
		a.log.Warn("Assistant is busy, dropping work", "welcome", task.welcome, "rejoin", task.rejoin)
	}
}

func (a *Agent) handle(ctx context.Context, task agentTask) {
	switch {
	case task.welcome:
		a.say(ctx, fmt.Sprintf("%s has joined the room and is ready to help!", a.name()))
	case task.rejoin:
		a.rejoin(ctx)
	case task.greet != nil:
		a.log.Info("Participant joined", "identity", task.greet.Identity)
		a.say(ctx, fmt.Sprintf("Welcome to the chat, %s! I'm %s, feel free to ask me anything.",
			task.greet.Name(), a.name()))
	case task.message != nil:
		a.answer(ctx, *task.message)
	}
}

func (a *Agent) rejoin(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(a.cfg.RejoinDelay):
	}
	a.log.Info("Assistant rejoining", "room", a.cfg.Request.Room)
	if err := a.session.Connect(ctx, a.cfg.Request); err != nil {
		a.log.Error("Rejoin failed", "error", err)
	}
}

func (a *Agent) answer(ctx context.Context, m domain.Message) {
	identity := m.Sender.Identity
	a.log.Info("Message received", "from", identity, "size", len(m.Text))

	history, err := a.memory.Recall(identity, a.cfg.MemorySize)
	if err != nil {
		a.log.Warn("Memory recall failed, answering without context", "identity", identity, "error", err)
		history = nil
	}

	replyCtx, cancel := context.WithTimeout(ctx, a.cfg.ReplyTimeout)
	reply, err := a.responder.Respond(replyCtx, identity, m.Text, history)
	cancel()
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = fmt.Errorf("empty reply")
	}
	if err != nil {
		a.log.Error("Responder failed", "identity", identity, "error", err)
		a.say(ctx, apologyText)
		return
	}

	exchange := domain.Exchange{Identity: identity, Prompt: m.Text, Reply: reply, At: a.cfg.Now()}
	if err := a.memory.Remember(exchange); err != nil {
		a.log.Warn("Memory store failed", "identity", identity, "error", err)
	}
	a.say(ctx, reply)
}

func (a *Agent) say(ctx context.Context, text string) {
	if err := a.session.SendMessage(ctx, text); err != nil {
		a.log.Warn("Assistant message not sent", "error", err)
	}
}
