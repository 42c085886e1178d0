package server

import (
	"context"
	"log/slog"
	"relaychat/auth"
	"relaychat/contract"
	"relaychat/domain"
	"relaychat/infrastructure/relay"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 3 * time.Second

type relayClient struct {
	t         *testing.T
	url       string
	transport *relay.Transport
}

func newRelayClient(t *testing.T, httpURL string) *relayClient {
	return &relayClient{
		t:   t,
		url: "ws" + strings.TrimPrefix(httpURL, "http") + "/rtc",
		transport: relay.NewTransport(logs.GetLoggerFromLevel(slog.LevelDebug), relay.TransportConfig{
			WriteTimeout: 2 * time.Second,
		}),
	}
}

func (c *relayClient) join(room, identity string) contract.Handle {
	c.t.Helper()
	grant, err := auth.GenerateGrant(testSecret, room, identity, strings.ToUpper(identity), time.Hour)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	h, err := c.transport.Connect(ctx, c.url, grant, contract.ConnectOptions{Room: room, Identity: identity})
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = h.Disconnect() })
	return h
}

// nextOf skips events until one of kind arrives.
func nextOf(t *testing.T, h contract.Handle, kind contract.EventKind) contract.Event {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-h.Events():
			require.True(t, ok, "event stream closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			require.FailNow(t, "timed out waiting for "+kind.String())
		}
	}
}

func TestRelay_TwoParticipantsExchangeData(t *testing.T) {
	req := require.New(t)
	ts, hub, _ := newTestServer(t, 0)
	client := newRelayClient(t, ts.URL)

	alice := client.join("general", "alice")
	req.Equal("alice", alice.Local().Identity)
	req.Equal("ALICE", alice.Local().DisplayName)
	req.True(alice.Local().IsLocal)
	req.NotEmpty(alice.Local().ID)
	req.Empty(alice.Participants())

	bob := client.join("general", "bob")
	req.Len(bob.Participants(), 1)
	req.Equal(alice.Local().ID, bob.Participants()[0].ID)

	joined := nextOf(t, alice, contract.EventParticipantJoined)
	req.Equal("bob", joined.Participant.Identity)
	req.Equal(bob.Local().ID, joined.Participant.ID)

	rooms, participants := hub.Stats()
	req.Equal(1, rooms)
	req.Equal(2, participants)

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	req.NoError(bob.Send(ctx, []byte(`{"hello":"alice"}`), contract.SendOptions{Reliable: true}))

	data := nextOf(t, alice, contract.EventDataReceived)
	req.Equal(`{"hello":"alice"}`, string(data.Data))
	req.Equal("bob", data.Participant.Identity)

	req.NoError(bob.Disconnect())
	left := nextOf(t, alice, contract.EventParticipantLeft)
	req.Equal(bob.Local().ID, left.Participant.ID)
}

func TestRelay_RoomsAreIsolated(t *testing.T) {
	req := require.New(t)
	ts, _, _ := newTestServer(t, 0)
	client := newRelayClient(t, ts.URL)

	alice := client.join("general", "alice")
	carol := client.join("random", "carol")
	req.Empty(carol.Participants())

	bob := client.join("general", "bob")
	nextOf(t, alice, contract.EventParticipantJoined)

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	req.NoError(carol.Send(ctx, []byte("only carol hears this"), contract.SendOptions{}))
	req.NoError(bob.Send(ctx, []byte("for general"), contract.SendOptions{}))

	data := nextOf(t, alice, contract.EventDataReceived)
	req.Equal("for general", string(data.Data))
}

func TestRelay_DuplicateIdentityReplacesSession(t *testing.T) {
	req := require.New(t)
	ts, hub, _ := newTestServer(t, 0)
	client := newRelayClient(t, ts.URL)

	first := client.join("general", "alice")
	second := client.join("general", "alice")
	req.Empty(second.Participants())

	ev := nextOf(t, first, contract.EventDisconnected)
	req.Equal(contract.ReasonDuplicateIdentity, ev.Reason)
	req.True(ev.Unexpected())

	_, participants := hub.Stats()
	req.Equal(1, participants)
}

func TestRelay_ShutdownSaysBye(t *testing.T) {
	req := require.New(t)
	ts, _, stop := newTestServer(t, 0)
	client := newRelayClient(t, ts.URL)

	alice := client.join("general", "alice")
	stop()

	ev := nextOf(t, alice, contract.EventDisconnected)
	req.Equal(contract.ReasonServerShutdown, ev.Reason)

	_, ok := <-alice.Events()
	req.False(ok)
}

func TestRelay_ClientDisconnectIsNotUnexpected(t *testing.T) {
	req := require.New(t)
	ts, hub, _ := newTestServer(t, 0)
	client := newRelayClient(t, ts.URL)

	alice := client.join("general", "alice")
	req.NoError(alice.Disconnect())
	req.NoError(alice.Disconnect())

	req.Eventually(func() bool {
		_, participants := hub.Stats()
		return participants == 0
	}, eventTimeout, 10*time.Millisecond)
}

func TestRelay_QualityFromPings(t *testing.T) {
	req := require.New(t)
	ts, _, _ := newTestServer(t, 20*time.Millisecond)
	client := newRelayClient(t, ts.URL)

	alice := client.join("general", "alice")
	ev := nextOf(t, alice, contract.EventQualityChanged)
	req.Equal(alice.Local().ID, ev.Participant.ID)
	req.Contains([]domain.ConnectionQuality{domain.QualityExcellent, domain.QualityGood, domain.QualityPoor}, ev.Quality)
}
