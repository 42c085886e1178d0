// Package responder holds the reply backends of the room assistant.
package responder

import (
	"context"
	"fmt"
	"relaychat/domain"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/samber/lo"
)

var (
	greetingWords = []string{"hello", "hi", "hey", "greetings"}
	helpWords     = []string{"help", "assist", "support"}
	thanksWords   = []string{"thank", "thanks"}
)

var smallTalk = []string{
	"Noted: %q. I'm answering from a short script today, but I'm listening.",
	"Got it: %q. Ask me something and I'll try my best.",
	"Thanks for sharing %q. Anything I can help with?",
}

// Canned answers from keyword rules. It serves when no completion service
// is configured and never fails.
type Canned struct {
	next atomic.Uint64
}

func NewCanned() *Canned {
	return &Canned{}
}

// Respond implements contract.Responder.
func (c *Canned) Respond(_ context.Context, identity, text string, history []domain.Exchange) (string, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	switch {
	case lo.Some(words, greetingWords):
		if len(history) > 0 {
			last := history[len(history)-1]
			return fmt.Sprintf("Welcome back, %s! Last time we talked about %q.", identity, last.Prompt), nil
		}
		return fmt.Sprintf("Hello %s! I'm the room assistant, ask me anything.", identity), nil
	case lo.Some(words, helpWords):
		return "Happy to help. Tell me what you need and I'll do what I can.", nil
	case lo.Some(words, thanksWords):
		return fmt.Sprintf("You're welcome, %s!", identity), nil
	case strings.Contains(text, "?"):
		return fmt.Sprintf("Good question: %q. I only have short scripted answers right now.", text), nil
	}
	i := c.next.Add(1) - 1
	return fmt.Sprintf(smallTalk[i%uint64(len(smallTalk))], text), nil
}
