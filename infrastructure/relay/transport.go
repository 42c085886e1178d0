package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"relaychat/contract"
	"relaychat/domain"
	"relaychat/errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	eventBufferSize    = 64
	outboundBufferSize = 64
	leaveTimeout       = 2 * time.Second
)

type TransportConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration // zero disables keepalive
	PingTimeout  time.Duration
}

// Transport dials the relay. It implements contract.Transport.
type Transport struct {
	log *slog.Logger
	cfg TransportConfig
}

func NewTransport(log *slog.Logger, cfg TransportConfig) *Transport {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 10 * time.Second
	}
	return &Transport{log: log, cfg: cfg}
}

// Connect dials serverURL and waits for the welcome frame. ctx bounds the
// handshake only; the returned session lives until Disconnect or a
// transport failure.
func (t *Transport) Connect(ctx context.Context, serverURL, credential string, opts contract.ConnectOptions) (contract.Handle, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	ws, resp, err := websocket.Dial(ctx, serverURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s (status %d): %w", serverURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", serverURL, err)
	}
	conn := NewConn(ws, 0, t.cfg.WriteTimeout)

	welcome, err := conn.Read(ctx)
	if err != nil {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != FrameWelcome || welcome.Local == nil {
		_ = conn.Close(websocket.StatusProtocolError, "expected welcome")
		return nil, fmt.Errorf("unexpected first frame %q", welcome.Type)
	}

	h := newHandle(t.log, conn, welcome)
	if h.local.DisplayName == "" {
		h.local.DisplayName = opts.DisplayName
	}
	t.log.Info("Joined relay room", "room", opts.Room, "participant", h.local.ID, "remotes", len(h.remotes))
	go h.readLoop()
	go h.writeLoop()
	if t.cfg.PingInterval > 0 {
		go h.keepalive(t.cfg.PingInterval, t.cfg.PingTimeout)
	}
	return h, nil
}

type outbound struct {
	frame  Frame
	result chan error
}

// handle is one relay session. Its read loop is the only producer of
// events and closes the channel after the final Disconnected event.
type handle struct {
	log     *slog.Logger
	conn    *Conn
	local   domain.Participant
	remotes []domain.Participant
	members map[string]domain.Participant // read loop only

	events    chan contract.Event
	writes    chan outbound
	ctx       context.Context
	cancel    context.CancelFunc
	abandoned chan struct{}
	once      sync.Once
	done      chan struct{}

	mu        sync.Mutex
	closing   bool
	byeReason string
}

func newHandle(log *slog.Logger, conn *Conn, welcome Frame) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		log:       log,
		conn:      conn,
		local:     FromWire(*welcome.Local),
		members:   make(map[string]domain.Participant),
		events:    make(chan contract.Event, eventBufferSize),
		writes:    make(chan outbound, outboundBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		abandoned: make(chan struct{}),
		done:      make(chan struct{}),
	}
	h.local.IsLocal = true
	for _, w := range welcome.Participants {
		p := FromWire(w)
		h.remotes = append(h.remotes, p)
		h.members[p.ID] = p
	}
	return h
}

func (h *handle) Local() domain.Participant          { return h.local }
func (h *handle) Participants() []domain.Participant { return h.remotes }
func (h *handle) Events() <-chan contract.Event      { return h.events }

// Send queues payload and waits for the write to complete.
func (h *handle) Send(ctx context.Context, payload []byte, opts contract.SendOptions) error {
	out := outbound{
		frame:  Frame{Type: FrameData, Payload: payload, Reliable: opts.Reliable},
		result: make(chan error, 1),
	}
	select {
	case h.writes <- out:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return errors.ErrNotConnected
	}
	select {
	case err := <-out.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return errors.ErrNotConnected
	}
}

// Disconnect says goodbye and closes the connection. Nobody is expected to
// read events afterwards.
func (h *handle) Disconnect() error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		<-h.done
		return nil
	}
	h.closing = true
	h.mu.Unlock()
	h.once.Do(func() { close(h.abandoned) })

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := h.conn.Write(ctx, Frame{Type: FrameLeave}); err != nil {
		h.log.Debug("Leave frame not sent", "error", err)
	}
	if err := h.conn.Close(websocket.StatusNormalClosure, "client close"); err != nil {
		h.log.Debug("Relay close handshake incomplete", "error", err)
	}
	h.cancel()
	<-h.done
	return nil
}

func (h *handle) emit(ev contract.Event) {
	select {
	case h.events <- ev:
	case <-h.abandoned:
	}
}

func (h *handle) readLoop() {
	var readErr error
	defer func() {
		h.cancel()
		h.emit(h.finalEvent(readErr))
		close(h.events)
		close(h.done)
	}()

	for {
		f, err := h.conn.Read(h.ctx)
		if err != nil {
			readErr = err
			return
		}
		switch f.Type {
		case FrameJoined:
			if f.Participant == nil {
				continue
			}
			p := FromWire(*f.Participant)
			h.members[p.ID] = p
			h.emit(contract.Event{Kind: contract.EventParticipantJoined, Participant: p})
		case FrameLeft:
			if f.Participant == nil {
				continue
			}
			p := FromWire(*f.Participant)
			delete(h.members, p.ID)
			h.emit(contract.Event{Kind: contract.EventParticipantLeft, Participant: p})
		case FrameData:
			sender, ok := h.members[f.From]
			if !ok {
				sender = domain.Participant{ID: f.From}
			}
			h.emit(contract.Event{Kind: contract.EventDataReceived, Participant: sender, Data: f.Payload})
		case FrameQuality:
			p := domain.Participant{ID: f.From}
			if f.Participant != nil {
				p = FromWire(*f.Participant)
			}
			h.emit(contract.Event{Kind: contract.EventQualityChanged, Participant: p, Quality: domain.ParseQuality(f.Quality)})
		case FrameBye:
			h.mu.Lock()
			h.byeReason = f.Reason
			h.mu.Unlock()
		default:
			h.log.Debug("Ignoring relay frame", "type", f.Type)
		}
	}
}

func (h *handle) finalEvent(err error) contract.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev := contract.Event{Kind: contract.EventDisconnected, Err: err}
	switch {
	case h.closing:
		ev.Reason = contract.ReasonClientInitiated
		ev.Err = nil
	case h.byeReason != "":
		ev.Reason = ReasonOf(h.byeReason)
	default:
		ev.Reason = contract.ReasonNetwork
	}
	return ev
}

func (h *handle) writeLoop() {
	for {
		select {
		case out := <-h.writes:
			err := h.conn.Write(h.ctx, out.frame)
			out.result <- err
			if err != nil {
				h.log.Warn("Relay write failed", "error", err)
				_ = h.conn.CloseNow()
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *handle) keepalive(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := h.conn.Ping(h.ctx, timeout); err != nil {
				if h.ctx.Err() == nil {
					h.log.Warn("Relay keepalive failed", "error", err)
					_ = h.conn.CloseNow()
				}
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}
