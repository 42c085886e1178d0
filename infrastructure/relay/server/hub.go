package server

import (
	"context"
	"log/slog"
	"relaychat/auth"
	"relaychat/domain"
	"relaychat/infrastructure/relay"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	outboundBufferSize = 64
	pingTimeout        = 5 * time.Second
	flushTimeout       = 2 * time.Second
)

// qualityFor buckets a ping round trip.
func qualityFor(rtt time.Duration) domain.ConnectionQuality {
	switch {
	case rtt < 100*time.Millisecond:
		return domain.QualityExcellent
	case rtt < 300*time.Millisecond:
		return domain.QualityGood
	default:
		return domain.QualityPoor
	}
}

type peer struct {
	participant domain.Participant
	room        string
	conn        *relay.Conn
	send        chan relay.Frame
	closed      chan struct{}
	once        sync.Once
}

// queue never blocks. A peer whose buffer is full is too slow to keep.
func (p *peer) queue(f relay.Frame) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.send <- f:
		return true
	default:
		return false
	}
}

// close queues an optional bye frame and stops the peer. The write loop
// flushes what is queued, then closes the websocket.
func (p *peer) close(bye string) {
	p.once.Do(func() {
		if bye != "" {
			p.queue(relay.Frame{Type: relay.FrameBye, Reason: bye})
		}
		close(p.closed)
	})
}

// writeLoop owns the outbound side of the websocket and is the one that
// closes it.
func (p *peer) writeLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case f := <-p.send:
			if err := p.conn.Write(ctx, f); err != nil {
				_ = p.conn.CloseNow()
				return
			}
		case <-p.closed:
			p.flush()
			_ = p.conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
	}
}

func (p *peer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case f := <-p.send:
			if err := p.conn.Write(ctx, f); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Hub fans data frames out to the other members of a room and keeps every
// member informed of joins, departures and link quality.
// All queueing happens under the hub lock so that each member sees the
// room's events in one order.
type Hub struct {
	log          *slog.Logger
	pingInterval time.Duration
	mu           sync.Mutex
	rooms        map[string]map[string]*peer
	closed       bool
}

func NewHub(log *slog.Logger, pingInterval time.Duration) *Hub {
	return &Hub{
		log:          log,
		pingInterval: pingInterval,
		rooms:        make(map[string]map[string]*peer),
	}
}

// Run blocks until ctx is done, then sends every member a shutdown bye.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for room, members := range h.rooms {
		for _, p := range members {
			p.close(relay.ByeServerShutdown)
		}
		delete(h.rooms, room)
	}
	h.log.Info("Relay hub stopped")
	return nil
}

// Stats returns the number of open rooms and connected participants.
func (h *Hub) Stats() (rooms, participants int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, members := range h.rooms {
		participants += len(members)
	}
	return len(h.rooms), participants
}

// Serve runs one participant connection until it leaves or fails.
func (h *Hub) Serve(ctx context.Context, conn *relay.Conn, claims *auth.RoomClaims) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, ok := h.join(conn, claims)
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, relay.ByeServerShutdown)
		return
	}
	writerDone := make(chan struct{})
	defer func() {
		h.leave(p)
		<-writerDone
	}()

	go p.writeLoop(ctx, writerDone)
	if h.pingInterval > 0 {
		go h.monitor(ctx, p)
	}

	for {
		f, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug("Participant connection ended", "participant", p.participant.ID, "error", err)
			return
		}
		switch f.Type {
		case relay.FrameData:
			h.broadcast(p, relay.Frame{Type: relay.FrameData, From: p.participant.ID, Payload: f.Payload, Reliable: f.Reliable})
		case relay.FrameLeave:
			h.log.Info("Participant left", "room", p.room, "participant", p.participant.ID)
			return
		default:
			h.log.Debug("Ignoring client frame", "type", f.Type)
		}
	}
}

func (h *Hub) join(conn *relay.Conn, claims *auth.RoomClaims) (*peer, bool) {
	p := &peer{
		participant: domain.Participant{
			ID:          uuid.NewString(),
			Identity:    claims.Identity,
			DisplayName: claims.Name,
			JoinedAt:    time.Now().UTC(),
			Quality:     domain.QualityUnknown,
		},
		room:   claims.Room,
		conn:   conn,
		send:   make(chan relay.Frame, outboundBufferSize),
		closed: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	// One connection per identity: the newcomer replaces the old session.
	for _, other := range h.rooms[p.room] {
		if other.participant.Identity == p.participant.Identity {
			h.removeLocked(other, relay.ByeDuplicateIdentity)
		}
	}
	members, ok := h.rooms[p.room]
	if !ok {
		members = make(map[string]*peer)
		h.rooms[p.room] = members
	}

	others := lo.Values(members)
	welcome := relay.Frame{
		Type:  relay.FrameWelcome,
		Local: lo.ToPtr(relay.ToWire(p.participant)),
		Participants: lo.Map(others, func(o *peer, _ int) relay.WireParticipant {
			return relay.ToWire(o.participant)
		}),
	}
	members[p.participant.ID] = p
	p.queue(welcome)
	joined := relay.Frame{Type: relay.FrameJoined, Participant: lo.ToPtr(relay.ToWire(p.participant))}
	for _, o := range others {
		h.queueLocked(o, joined)
	}
	h.log.Info("Participant joined", "room", p.room, "identity", p.participant.Identity, "participant", p.participant.ID)
	return p, true
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(p, "")
}

// removeLocked drops p from its room and tells the rest of the room.
func (h *Hub) removeLocked(p *peer, bye string) {
	members := h.rooms[p.room]
	if members[p.participant.ID] != p {
		p.close(bye)
		return
	}
	delete(members, p.participant.ID)
	if len(members) == 0 {
		delete(h.rooms, p.room)
	}
	p.close(bye)
	left := relay.Frame{Type: relay.FrameLeft, Participant: lo.ToPtr(relay.ToWire(p.participant))}
	for _, o := range members {
		h.queueLocked(o, left)
	}
}

func (h *Hub) queueLocked(p *peer, f relay.Frame) {
	if !p.queue(f) {
		h.log.Warn("Dropping slow participant", "room", p.room, "participant", p.participant.ID)
		h.removeLocked(p, "")
	}
}

func (h *Hub) broadcast(from *peer, f relay.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, o := range h.rooms[from.room] {
		if id != from.participant.ID {
			h.queueLocked(o, f)
		}
	}
}

// monitor pings the participant and announces quality changes to the room.
func (h *Hub) monitor(ctx context.Context, p *peer) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rtt, err := p.conn.Ping(ctx, pingTimeout)
			quality := domain.QualityLost
			if err == nil {
				quality = qualityFor(rtt)
			}
			h.updateQuality(p, quality)
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		}
	}
}

func (h *Hub) updateQuality(p *peer, quality domain.ConnectionQuality) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.participant.Quality == quality || h.rooms[p.room][p.participant.ID] != p {
		return
	}
	p.participant.Quality = quality
	f := relay.Frame{
		Type:        relay.FrameQuality,
		From:        p.participant.ID,
		Participant: lo.ToPtr(relay.ToWire(p.participant)),
		Quality:     string(quality),
	}
	for _, o := range h.rooms[p.room] {
		h.queueLocked(o, f)
	}
}
