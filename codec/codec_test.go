package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	req := require.New(t)
	at := time.UnixMilli(1_717_171_717_171)
	texts := []string{"hi", "héllo wörld", "   ", "", "a \"quoted\" {json} line", "emoji 🚀 ok", "multi\nline"}

	for _, text := range texts {
		data, err := EncodeAt(text, "alice", at)
		req.NoError(err)

		frame, ok := Decode(data)
		req.True(ok, "text %q", text)
		req.Equal(text, frame.Content)
		req.Equal("alice", frame.Sender)
		req.Equal(ChatMessageType, frame.Kind)
		req.Equal(at.UnixMilli(), frame.Timestamp)
		req.True(at.Equal(frame.Time()))
	}
}

func TestCodec_WireShape(t *testing.T) {
	req := require.New(t)
	data, err := EncodeAt("hi", "alice", time.UnixMilli(42))
	req.NoError(err)

	var raw map[string]any
	req.NoError(json.Unmarshal(data, &raw))
	req.Equal(map[string]any{
		"type":      "chat-message",
		"content":   "hi",
		"sender":    "alice",
		"timestamp": float64(42),
	}, raw)
}

func TestCodec_DecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Malformed bytes", "\xff\xfe{not json"},
		{"Truncated json", `{"type":"chat-message","content":"hi"`},
		{"Empty input", ""},
		{"Json array", `["chat-message"]`},
		{"Missing type", `{"content":"hi","sender":"alice","timestamp":1}`},
		{"Other type", `{"type":"typing","content":"hi","sender":"alice","timestamp":1}`},
		{"Missing content", `{"type":"chat-message","sender":"alice","timestamp":1}`},
		{"Missing sender", `{"type":"chat-message","content":"hi","timestamp":1}`},
		{"Missing timestamp", `{"type":"chat-message","content":"hi","sender":"alice"}`},
		{"Null content", `{"type":"chat-message","content":null,"sender":"alice","timestamp":1}`},
		{"Wrong timestamp type", `{"type":"chat-message","content":"hi","sender":"alice","timestamp":"now"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			req.NotPanics(func() {
				_, ok := Decode([]byte(tt.input))
				req.False(ok)
			})
		})
	}
}

func TestCodec_DecodeAcceptsExtraFields(t *testing.T) {
	req := require.New(t)
	frame, ok := Decode([]byte(`{"type":"chat-message","content":"","sender":"bob","timestamp":7,"topic":"x"}`))
	req.True(ok)
	req.Equal("", frame.Content)
	req.Equal("bob", frame.Sender)
}
