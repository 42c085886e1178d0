package e2e

import (
	"context"
	"relaychat/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseRelaySuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestTwoParticipantsChat() {
	room := "e2e-" + uuid.NewString()[:8]

	s.Step("Alice joins an empty room")
	alice := s.Join(room, "alice")
	s.Len(alice.Session.View().Participants, 1)
	s.WaitForMessage(alice, "Welcome to "+room)

	s.Step("Bob joins and both rosters converge")
	bob := s.Join(room, "bob")
	s.WaitForMessage(alice, "Bob joined the room")
	s.Eventually(func() bool { return len(alice.Session.View().Participants) == 2 }, s.Config.Timeout, 20*time.Millisecond)
	s.Len(bob.Session.View().Participants, 2)

	s.Step("Bob talks, Alice hears")
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
	defer cancel()
	s.Require().NoError(bob.Session.SendMessage(ctx, "hello alice"))
	heard := s.WaitForMessage(alice, "hello alice")
	s.Equal(domain.KindText, heard.Kind)
	s.Equal("bob", heard.Sender.Identity)
	s.False(heard.Sender.IsLocal)

	s.Step("Bob leaves")
	bob.Leave()
	s.WaitForMessage(alice, "left the room")
	s.Eventually(func() bool { return len(alice.Session.View().Participants) == 1 }, s.Config.Timeout, 20*time.Millisecond)

	s.Step("Alice disconnects and the view is reset")
	s.Require().NoError(alice.Session.Disconnect(ctx))
	view := alice.Session.View()
	s.Equal(domain.StatusDisconnected, view.Status)
	s.Empty(view.Participants)
	s.Empty(view.Messages)
}
