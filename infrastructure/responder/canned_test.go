package responder

import (
	"context"
	"relaychat/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanned_KeywordRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"Greeting", "Hey there", "Hello alice! I'm the room assistant, ask me anything."},
		{"Help", "can you assist me", "Happy to help. Tell me what you need and I'll do what I can."},
		{"Thanks", "thanks a lot!", "You're welcome, alice!"},
		{"Question", "what time is it?", `Good question: "what time is it?". I only have short scripted answers right now.`},
		{"Greeting word inside another word", "this is fine", `Noted: "this is fine". I'm answering from a short script today, but I'm listening.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := NewCanned().Respond(context.Background(), "alice", tt.text, nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, reply)
		})
	}
}

func TestCanned_GreetingRemembersLastTopic(t *testing.T) {
	req := require.New(t)
	history := []domain.Exchange{
		{Identity: "alice", Prompt: "how do I join a room", Reply: "use /reconnect"},
		{Identity: "alice", Prompt: "what is a grant", Reply: "a signed token"},
	}

	reply, err := NewCanned().Respond(context.Background(), "alice", "hello again", history)
	req.NoError(err)
	req.Equal(`Welcome back, alice! Last time we talked about "what is a grant".`, reply)
}

func TestCanned_SmallTalkRotates(t *testing.T) {
	req := require.New(t)
	canned := NewCanned()
	seen := make(map[string]bool)
	for range len(smallTalk) {
		reply, err := canned.Respond(context.Background(), "bob", "nice weather", nil)
		req.NoError(err)
		seen[reply] = true
	}
	req.Len(seen, len(smallTalk))
}
