package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoom_PostMessage_KeepsArrivalOrder(t *testing.T) {
	req := require.New(t)
	room := NewRoom("general")
	ids := NewIDGenerator(nil)

	alice := Sender{ID: "p1", Identity: "alice", IsLocal: true}
	bob := Sender{ID: "p2", Identity: "bob"}

	room.PostMessage(ids.NewTextMessage(alice, "hi"))
	room.PostMessage(ids.NewTextMessageAt(bob, "hello", time.Now().Add(-time.Minute)))
	room.PostMessage(ids.NewSystemMessage("clara joined"))

	messages := room.Messages()
	req.Len(messages, 3)
	req.Equal("hi", messages[0].Text)
	req.Equal("hello", messages[1].Text)
	req.Equal(KindSystem, messages[2].Kind)
	req.Equal(SystemSender, messages[2].Sender)

	// Returned slice is a copy
	messages[0].Text = "changed"
	req.Equal("hi", room.Messages()[0].Text)

	room.Reset("random")
	req.Equal(0, room.Len())
	req.Equal("random", room.Name)
}

func TestIDGenerator_UniqueUnderClockSkew(t *testing.T) {
	req := require.New(t)
	base := time.UnixMilli(1_700_000_000_000)
	ticks := []time.Time{base, base, base.Add(-5 * time.Second), base}
	i := 0
	ids := NewIDGenerator(func() time.Time {
		at := ticks[i%len(ticks)]
		i++
		return at
	})

	seen := make(map[string]struct{})
	for range 8 {
		id, _ := ids.Next()
		_, dup := seen[id]
		req.False(dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	first, at := NewIDGenerator(func() time.Time { return base }).Next()
	req.Equal("1700000000000-1", first)
	req.Equal(base, at)
}
