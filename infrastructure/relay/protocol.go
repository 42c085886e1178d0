// Package relay speaks the development relay protocol: JSON text frames
// over a websocket, one connection per participant.
package relay

import (
	"relaychat/contract"
	"relaychat/domain"
	"time"
)

type FrameType string

const (
	// client -> server
	FrameData  FrameType = "data"
	FrameLeave FrameType = "leave"

	// server -> client
	FrameWelcome FrameType = "welcome"
	FrameJoined  FrameType = "participant_joined"
	FrameLeft    FrameType = "participant_left"
	FrameQuality FrameType = "quality"
	FrameBye     FrameType = "bye"
)

// Bye reasons sent by the relay before it closes a connection.
const (
	ByeServerShutdown    = "server_shutdown"
	ByeDuplicateIdentity = "duplicate_identity"
)

type WireParticipant struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	JoinedAt int64  `json:"joinedAt"` // milliseconds since epoch
	Quality  string `json:"quality,omitempty"`
}

// Frame is the single envelope of the protocol; Type selects the fields
// that are meaningful. Payload travels as base64.
type Frame struct {
	Type         FrameType         `json:"type"`
	Payload      []byte            `json:"payload,omitempty"`
	Reliable     bool              `json:"reliable,omitempty"`
	From         string            `json:"from,omitempty"`
	Local        *WireParticipant  `json:"local,omitempty"`
	Participants []WireParticipant `json:"participants,omitempty"`
	Participant  *WireParticipant  `json:"participant,omitempty"`
	Quality      string            `json:"quality,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

func ToWire(p domain.Participant) WireParticipant {
	return WireParticipant{
		ID:       p.ID,
		Identity: p.Identity,
		Name:     p.DisplayName,
		JoinedAt: p.JoinedAt.UnixMilli(),
		Quality:  string(p.Quality),
	}
}

func FromWire(w WireParticipant) domain.Participant {
	return domain.Participant{
		ID:          w.ID,
		Identity:    w.Identity,
		DisplayName: w.Name,
		JoinedAt:    time.UnixMilli(w.JoinedAt),
		Quality:     domain.ParseQuality(w.Quality),
	}
}

// ReasonOf maps a bye reason onto the transport disconnect reasons.
func ReasonOf(bye string) contract.DisconnectReason {
	switch bye {
	case ByeServerShutdown:
		return contract.ReasonServerShutdown
	case ByeDuplicateIdentity:
		return contract.ReasonDuplicateIdentity
	default:
		return contract.ReasonUnknown
	}
}
