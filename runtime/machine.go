// Package runtime owns the connection lifecycle of a chat session.
// It arbitrates connect and disconnect requests, drives the reconnection
// policy and is the only holder of the transport handle. It contains no
// message or roster logic: those are delegated to Hooks.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"relaychat/contract"
	"relaychat/domain"
	"relaychat/errors"
	"relaychat/observability"
	"strings"
	"time"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultTokenTimeout   = 10 * time.Second
	DefaultSendTimeout    = 5 * time.Second

	outboxSize = 64
)

// Params are the connect parameters. They are handed to Connect explicitly
// and only remembered as the last known parameters for reconnection.
type Params struct {
	ServerURL   string
	Room        string
	Identity    string
	DisplayName string
	// Token is an optional caller supplied credential. When empty the
	// TokenSource is asked on every attempt.
	Token string
}

// Validate fails on parameters that can never produce a session.
func (p Params) Validate() error {
	switch {
	case strings.TrimSpace(p.Room) == "":
		return errors.ErrMissingRoom
	case strings.TrimSpace(p.Identity) == "":
		return errors.ErrMissingIdentity
	case strings.TrimSpace(p.ServerURL) == "":
		return errors.ErrMissingServerURL
	}
	return nil
}

type MachineConfig struct {
	Backoff        Backoff
	ConnectTimeout time.Duration
	TokenTimeout   time.Duration
	// SendTimeout bounds one transport write. It runs off the loop.
	SendTimeout time.Duration
}

// Hooks receive the session side effects. They run on the loop goroutine.
type Hooks interface {
	// SessionStarted seeds the roster. resumed is true after a reconnection.
	SessionStarted(params Params, local domain.Participant, remotes []domain.Participant, resumed bool)
	// SessionEvent handles membership, data and quality events. An unexpected
	// Disconnected event is forwarded only once a retry has been scheduled.
	SessionEvent(ev contract.Event)
	// SessionEnded drops the roster, and the message log too when reset is true.
	SessionEnded(reset bool)
}

type noopHooks struct{}

func (noopHooks) SessionStarted(Params, domain.Participant, []domain.Participant, bool) {}
func (noopHooks) SessionEvent(contract.Event)                                          {}
func (noopHooks) SessionEnded(bool)                                                    {}

// StateEvent describes one transition. Staying in StatusReconnecting with a
// higher Attempt is reported too.
type StateEvent struct {
	OldStatus domain.Status
	NewStatus domain.Status
	Attempt   int
	Delay     time.Duration // wait before the scheduled retry, if any
	Error     error
}

// Machine is the connection state machine. Except for the constructor and
// setters, every method must be called from an op running on its Loop.
type Machine struct {
	log            *slog.Logger
	loop           *Loop
	transport      contract.Transport
	tokens         contract.TokenSource
	backoff        Backoff
	connectTimeout time.Duration
	tokenTimeout   time.Duration
	sendTimeout    time.Duration
	scheduler      Scheduler
	hooks          Hooks
	metrics        *observability.SessionMetrics
	onState        func(StateEvent)

	status        domain.Status
	params        Params
	handle        contract.Handle
	outbox        *outbox
	attempt       int
	lastErr       error
	generation    uint64
	cancelAttempt context.CancelFunc
	retryTimer    Timer
}

func NewMachine(log *slog.Logger, loop *Loop, transport contract.Transport,
	tokens contract.TokenSource, cfg MachineConfig) *Machine {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = DefaultTokenTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Machine{
		log:            log,
		loop:           loop,
		transport:      transport,
		tokens:         tokens,
		backoff:        cfg.Backoff,
		connectTimeout: cfg.ConnectTimeout,
		tokenTimeout:   cfg.TokenTimeout,
		sendTimeout:    cfg.SendTimeout,
		scheduler:      WallClock,
		hooks:          noopHooks{},
		status:         domain.StatusDisconnected,
	}
}

func (m *Machine) SetScheduler(s Scheduler) {
	if s != nil {
		m.scheduler = s
	}
}

func (m *Machine) SetHooks(h Hooks) {
	if h != nil {
		m.hooks = h
	}
}

func (m *Machine) SetMetrics(metrics *observability.SessionMetrics) {
	m.metrics = metrics
}

// OnStateChanged registers the transition callback. It runs on the loop.
func (m *Machine) OnStateChanged(fn func(StateEvent)) {
	m.onState = fn
}

func (m *Machine) Status() domain.Status { return m.status }
func (m *Machine) Params() Params        { return m.params }
func (m *Machine) Attempt() int          { return m.attempt }
func (m *Machine) LastError() error      { return m.lastErr }

// Connect starts a session. It is accepted only from StatusDisconnected, or
// from StatusError as an explicit retry; in any other state it is a no-op so
// that overlapping callers can never open a second transport session.
// Invalid params move the machine to StatusError and are returned.
func (m *Machine) Connect(p Params) error {
	switch m.status {
	case domain.StatusDisconnected:
	case domain.StatusError:
		// Explicit retry: the failed session is discarded first.
		m.lastErr = nil
		m.hooks.SessionEnded(true)
	default:
		m.log.Debug("Connect ignored", "status", m.status.String(), "room", p.Room)
		return nil
	}

	if err := p.Validate(); err != nil {
		wrapped := errors.Wrap(errors.KindConfiguration, "invalid connect parameters", err)
		m.enterError(wrapped)
		return wrapped
	}

	m.params = p
	m.attempt = 0
	m.lastErr = nil
	m.transition(domain.StatusConnecting, nil, 0)
	m.startAttempt()
	return nil
}

// Disconnect cancels any pending attempt or retry, tears the transport down
// and clears the session. It is always safe to call.
func (m *Machine) Disconnect() {
	if m.status == domain.StatusDisconnected {
		return
	}
	m.log.Info("Disconnecting", "room", m.params.Room, "status", m.status.String())
	m.cancelPending()
	m.teardown(m.release())
	m.params = Params{}
	m.attempt = 0
	m.lastErr = nil
	m.hooks.SessionEnded(true)
	m.transition(domain.StatusDisconnected, nil, 0)
}

// Send queues payload for the current handle and returns without waiting
// for the write. Only a connected session can send. Write failures are
// logged and counted, and a broken connection surfaces as a Disconnected
// event.
func (m *Machine) Send(payload []byte) error {
	if m.status != domain.StatusConnected || m.outbox == nil {
		return errors.Wrap(errors.KindSend, "cannot send", errors.ErrNotConnected)
	}
	select {
	case m.outbox.queue <- payload:
		return nil
	default:
		return errors.Wrap(errors.KindSend, "cannot send", errors.ErrSendQueueFull)
	}
}

// outbox feeds one handle in send order from its own goroutine.
type outbox struct {
	queue  chan []byte
	cancel context.CancelFunc
}

func (m *Machine) startOutbox(h contract.Handle) *outbox {
	ctx, cancel := context.WithCancel(context.Background())
	o := &outbox{queue: make(chan []byte, outboxSize), cancel: cancel}
	go m.drain(ctx, h, o.queue, m.sendTimeout)
	return o
}

func (m *Machine) drain(ctx context.Context, h contract.Handle, queue <-chan []byte, timeout time.Duration) {
	for {
		select {
		case payload := <-queue:
			if ctx.Err() != nil {
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, timeout)
			err := h.Send(sendCtx, payload, contract.SendOptions{Reliable: true})
			cancel()
			if err != nil && ctx.Err() == nil {
				m.metrics.SendFailed(context.Background())
				m.log.Warn("Message not delivered", "size", len(payload), "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// release detaches the current handle and stops its outbox. Queued
// payloads are dropped.
func (m *Machine) release() contract.Handle {
	h := m.handle
	m.handle = nil
	if m.outbox != nil {
		m.outbox.cancel()
		m.outbox = nil
	}
	return h
}

// cancelPending invalidates the in-flight attempt, the retry timer and the
// event pump of the current handle. Results tagged with an older generation
// are dropped or torn down when they reach the loop.
func (m *Machine) cancelPending() {
	m.generation++
	if m.cancelAttempt != nil {
		m.cancelAttempt()
		m.cancelAttempt = nil
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Machine) startAttempt() {
	m.cancelPending()
	generation := m.generation
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelAttempt = cancel
	params := m.params
	resumed := m.status == domain.StatusReconnecting
	m.metrics.ConnectAttempt(ctx, resumed)
	m.log.Info("Connecting", "room", params.Room, "identity", params.Identity, "attempt", m.attempt)

	go func() {
		h, err := m.dial(ctx, params)
		if !m.loop.Post(func() { m.attemptFinished(generation, h, err) }) && h != nil {
			m.teardown(h)
		}
	}()
}

// dial runs off the loop. Both suspension points are bounded by a timeout,
// even when the collaborator ignores its context.
func (m *Machine) dial(ctx context.Context, p Params) (contract.Handle, error) {
	credential := p.Token
	if credential == "" {
		if m.tokens == nil {
			return nil, errors.New(errors.KindCredential, "no token and no credential service configured")
		}
		tokenCtx, cancel := context.WithTimeout(ctx, m.tokenTimeout)
		token, err := await(tokenCtx, func(ctx context.Context) (string, error) {
			return m.tokens.Token(ctx, p.Room, p.Identity)
		}, nil)
		cancel()
		if err != nil {
			return nil, errors.Wrap(errors.KindCredential, "credential request failed", err)
		}
		if token == "" {
			return nil, errors.Wrap(errors.KindCredential, "credential request failed", errors.ErrEmptyToken)
		}
		credential = token
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()
	opts := contract.ConnectOptions{Room: p.Room, Identity: p.Identity, DisplayName: p.DisplayName}
	h, err := await(connectCtx, func(ctx context.Context) (contract.Handle, error) {
		return m.transport.Connect(ctx, p.ServerURL, credential, opts)
	}, m.teardown)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransportConnect, "transport connect failed", err)
	}
	if h == nil {
		return nil, errors.New(errors.KindTransportConnect, "transport returned no session")
	}
	return h, nil
}

func (m *Machine) attemptFinished(generation uint64, h contract.Handle, err error) {
	if generation != m.generation {
		// Disconnect won the race: never adopt a session nobody wants.
		if h != nil {
			m.log.Info("Discarding session established after cancellation", "room", m.params.Room)
			m.teardown(h)
		}
		return
	}
	if m.cancelAttempt != nil {
		// The handle outlives the dial context.
		m.cancelAttempt()
		m.cancelAttempt = nil
	}

	if err != nil {
		m.metrics.ConnectFailure(context.Background(), errors.KindOf(err).String())
		m.log.Warn("Connect attempt failed", "status", m.status.String(), "attempt", m.attempt, "error", err)
		if m.status == domain.StatusReconnecting && !errors.IsKind(err, errors.KindCredential) {
			m.scheduleRetry(err)
			return
		}
		m.enterError(err)
		return
	}
	m.adopt(h)
}

func (m *Machine) adopt(h contract.Handle) {
	resumed := m.status == domain.StatusReconnecting
	m.handle = h
	m.outbox = m.startOutbox(h)
	m.attempt = 0
	m.lastErr = nil
	m.hooks.SessionStarted(m.params, h.Local(), h.Participants(), resumed)
	m.transition(domain.StatusConnected, nil, 0)
	m.pump(m.generation, h)
}

// pump forwards transport events to the loop in delivery order.
func (m *Machine) pump(generation uint64, h contract.Handle) {
	events := h.Events()
	if events == nil {
		return
	}
	go func() {
		for ev := range events {
			if !m.loop.Post(func() { m.handleEvent(generation, ev) }) {
				return
			}
		}
	}()
}

func (m *Machine) handleEvent(generation uint64, ev contract.Event) {
	if generation != m.generation || m.handle == nil {
		return
	}
	switch ev.Kind {
	case contract.EventDisconnected:
		m.release()
		if !ev.Unexpected() {
			m.log.Info("Transport closed by client", "room", m.params.Room)
			m.cancelPending()
			m.params = Params{}
			m.attempt = 0
			m.lastErr = nil
			m.hooks.SessionEnded(true)
			m.transition(domain.StatusDisconnected, nil, 0)
			return
		}
		cause := errors.Wrap(errors.KindTransportDisconnected,
			fmt.Sprintf("transport disconnected (%s)", ev.Reason), ev.Err)
		m.log.Warn("Transport lost", "room", m.params.Room, "reason", ev.Reason.String())
		if m.scheduleRetry(cause) {
			m.hooks.SessionEvent(ev)
		}
	case contract.EventReconnecting:
		if m.status == domain.StatusConnected {
			m.transition(domain.StatusReconnecting, nil, 0)
		}
	case contract.EventReconnected:
		if m.status == domain.StatusReconnecting {
			m.transition(domain.StatusConnected, nil, 0)
		}
	case contract.EventConnected:
	default:
		m.hooks.SessionEvent(ev)
	}
}

// scheduleRetry either arms the next backoff timer or, once MaxAttempts
// retries have failed, escalates to StatusError. It reports whether a retry
// was armed.
func (m *Machine) scheduleRetry(cause error) bool {
	if m.backoff.Exhausted(m.attempt) {
		m.enterError(errors.Wrap(errors.KindReconnectExhausted,
			fmt.Sprintf("reconnection failed after %d attempts", m.attempt), cause))
		return false
	}
	m.cancelPending()
	m.attempt++
	m.lastErr = cause
	delay := m.backoff.Delay(m.attempt)
	generation := m.generation
	m.retryTimer = m.scheduler.AfterFunc(delay, func() {
		m.loop.Post(func() { m.retryFired(generation) })
	})
	m.metrics.ReconnectScheduled(context.Background(), m.attempt)
	m.log.Info("Reconnect scheduled", "attempt", m.attempt, "max", m.backoff.MaxAttempts, "delay", delay)
	m.transition(domain.StatusReconnecting, cause, delay)
	return true
}

func (m *Machine) retryFired(generation uint64) {
	if generation != m.generation || m.status != domain.StatusReconnecting {
		return
	}
	m.retryTimer = nil
	m.startAttempt()
}

func (m *Machine) enterError(err error) {
	m.cancelPending()
	m.teardown(m.release())
	m.lastErr = err
	m.hooks.SessionEnded(false)
	m.transition(domain.StatusError, err, 0)
}

func (m *Machine) transition(to domain.Status, err error, delay time.Duration) {
	from := m.status
	m.status = to
	if from != to {
		m.metrics.StateChanged(context.Background(), from.String(), to.String())
		m.log.Debug("Session status changed", "from", from.String(), "to", to.String())
	}
	if m.onState != nil {
		m.onState(StateEvent{OldStatus: from, NewStatus: to, Attempt: m.attempt, Delay: delay, Error: err})
	}
}

// teardown disconnects h off the loop. Closing a transport may wait on the
// network and must not stall event processing.
func (m *Machine) teardown(h contract.Handle) {
	if h == nil {
		return
	}
	go func() {
		if err := h.Disconnect(); err != nil {
			m.log.Debug("Transport teardown failed", "error", err)
		}
	}()
}

// await bounds fn by ctx. A result arriving after the deadline is handed to
// discard so that nothing it opened leaks.
func await[T any](ctx context.Context, fn func(context.Context) (T, error), discard func(T)) (T, error) {
	type result struct {
		value T
		err   error
	}
	results := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		results <- result{v, err}
	}()
	select {
	case r := <-results:
		return r.value, r.err
	case <-ctx.Done():
		go func() {
			r := <-results
			if r.err == nil && discard != nil {
				discard(r.value)
			}
		}()
		var zero T
		return zero, ctx.Err()
	}
}
