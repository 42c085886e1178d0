// Package domain contains core concepts of the chat session.
// This file defines Message events and related rules.
// Messages are immutable once appended to a Room.
package domain

import (
	"fmt"
	"sync"
	"time"
)

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindSystem MessageKind = "system"
)

// Message represents an immutable chat entry.
type Message struct {
	ID        string // "<unix millis>-<counter>", see IDGenerator
	Text      string
	Sender    Sender
	Timestamp time.Time
	Kind      MessageKind
}

// IDGenerator hands out message ids made of the wall clock and a counter.
// The counter alone keeps ids unique inside a session, even when the clock
// goes backwards between two rapid sends.
type IDGenerator struct {
	mu  sync.Mutex
	now func() time.Time
	seq uint64
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh id and the timestamp it was built from.
func (g *IDGenerator) Next() (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	at := g.now()
	return fmt.Sprintf("%d-%d", at.UnixMilli(), g.seq), at
}

// NewTextMessage builds a chat line authored by sender.
func (g *IDGenerator) NewTextMessage(sender Sender, text string) Message {
	id, at := g.Next()
	return Message{ID: id, Text: text, Sender: sender, Timestamp: at, Kind: KindText}
}

// NewTextMessageAt keeps the sender's timestamp for inbound frames.
func (g *IDGenerator) NewTextMessageAt(sender Sender, text string, at time.Time) Message {
	id, _ := g.Next()
	return Message{ID: id, Text: text, Sender: sender, Timestamp: at, Kind: KindText}
}

// NewSystemMessage builds an announcement attributed to the system sender.
func (g *IDGenerator) NewSystemMessage(text string) Message {
	id, at := g.Next()
	return Message{ID: id, Text: text, Sender: SystemSender, Timestamp: at, Kind: KindSystem}
}

// SystemSender authors welcome, join and leave announcements.
var SystemSender = Sender{ID: "system", Identity: "system", DisplayName: "System"}
