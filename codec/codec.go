// Package codec frames chat text for the shared data channel.
//
// The data channel may carry other frame types in the future, so Decode is
// defensive: anything that is not a complete chat-message envelope is
// reported as "no message" and never as an error or a panic.
package codec

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// ChatMessageType tags chat frames on the wire.
const ChatMessageType = "chat-message"

var validate = validator.New()

// Frame is a decoded chat-message envelope.
type Frame struct {
	Kind      string
	Content   string
	Sender    string
	Timestamp int64 // milliseconds since epoch
}

// Time converts the wire timestamp.
func (f Frame) Time() time.Time {
	return time.UnixMilli(f.Timestamp)
}

type envelope struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// inbound uses pointers so that presence is checked, not emptiness:
// an empty content string is still a well formed frame.
type inbound struct {
	Type      *string `json:"type" validate:"required,eq=chat-message"`
	Content   *string `json:"content" validate:"required"`
	Sender    *string `json:"sender" validate:"required"`
	Timestamp *int64  `json:"timestamp" validate:"required"`
}

// Encode wraps text in a chat-message envelope stamped with the current time.
func Encode(text, senderIdentity string) ([]byte, error) {
	return EncodeAt(text, senderIdentity, time.Now())
}

func EncodeAt(text, senderIdentity string, at time.Time) ([]byte, error) {
	return json.Marshal(envelope{
		Type:      ChatMessageType,
		Content:   text,
		Sender:    senderIdentity,
		Timestamp: at.UnixMilli(),
	})
}

// Decode parses a chat-message envelope. The boolean is false for malformed
// bytes, another frame type, or a missing field.
func Decode(data []byte) (Frame, bool) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Frame{}, false
	}
	if err := validate.Struct(in); err != nil {
		return Frame{}, false
	}
	return Frame{
		Kind:      *in.Type,
		Content:   *in.Content,
		Sender:    *in.Sender,
		Timestamp: *in.Timestamp,
	}, true
}
