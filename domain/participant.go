// Package domain contains core concepts of the chat session.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// ConnectionQuality is the link quality reported by the transport for a participant.
type ConnectionQuality string

const (
	QualityUnknown   ConnectionQuality = "unknown"
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
	QualityLost      ConnectionQuality = "lost"
)

// ParseQuality maps a transport quality label, falling back to QualityUnknown.
func ParseQuality(s string) ConnectionQuality {
	switch q := ConnectionQuality(s); q {
	case QualityExcellent, QualityGood, QualityPoor, QualityLost:
		return q
	default:
		return QualityUnknown
	}
}

// Capabilities are local-only media flags. The data-only profile never
// negotiates media, so flipping them has no transport effect.
type Capabilities struct {
	Audio       bool
	Video       bool
	ScreenShare bool
}

// Participant is one member of the session.
// Identity is human-readable and may be reused across reconnects; ID is not.
type Participant struct {
	ID           string            `json:"id"`
	Identity     string            `json:"identity"`
	DisplayName  string            `json:"displayName,omitempty"`
	IsLocal      bool              `json:"isLocal"`
	JoinedAt     time.Time         `json:"joinedAt"`
	Quality      ConnectionQuality `json:"quality,omitempty"`
	Capabilities Capabilities      `json:"-"`
}

// Name is what gets shown for the participant.
func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Identity
}

// Sender is the copy of a participant frozen into a message at send time,
// so the message still renders after the participant has left.
type Sender struct {
	ID          string
	Identity    string
	DisplayName string
	IsLocal     bool
}

func SenderOf(p Participant) Sender {
	return Sender{
		ID:          p.ID,
		Identity:    p.Identity,
		DisplayName: p.Name(),
		IsLocal:     p.IsLocal,
	}
}
