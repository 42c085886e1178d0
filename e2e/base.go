package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"relaychat/domain"
	"relaychat/infrastructure/relay"
	"relaychat/infrastructure/token"
	"relaychat/runtime"
	"relaychat/services"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration and skips the suite when
// no relay is reachable.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("E2E_RELAY_ADDR is not set")
	}
}

// Step prints a header for one scenario step.
func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Participant is one running session joined to the relay under test.
type Participant struct {
	Session *services.Session
	Request services.ConnectRequest
	stop    context.CancelFunc
	done    chan struct{}
}

// Join starts a session and waits until it is connected.
func (s *BaseRelaySuite) Join(room, identity string) *Participant {
	log := logs.GetLoggerFromLevel(slog.LevelInfo)
	base := strings.TrimRight(s.Config.RelayAddr, "/")
	session := services.NewSession(log,
		relay.NewTransport(log, relay.TransportConfig{WriteTimeout: 5 * time.Second}),
		token.NewClient(log, base, strings.ToUpper(identity[:1])+identity[1:]),
		services.SessionConfig{Backoff: runtime.Backoff{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Participant{
		Session: session,
		Request: services.ConnectRequest{
			ServerURL: "ws" + strings.TrimPrefix(base, "http") + "/rtc",
			Room:      room,
			Identity:  identity,
		},
		stop: cancel,
		done: make(chan struct{}),
	}
	go func() {
		_ = session.Run(ctx)
		close(p.done)
	}()
	s.T().Cleanup(p.Leave)

	connectCtx, connectCancel := context.WithTimeout(ctx, s.Config.Timeout)
	defer connectCancel()
	s.Require().NoError(session.Connect(connectCtx, p.Request))
	s.Eventually(func() bool { return session.View().Status == domain.StatusConnected },
		s.Config.Timeout, 20*time.Millisecond, "%s never connected: %s", identity, session.View().LastError)
	return p
}

// Leave stops the session. It is safe to call twice.
func (p *Participant) Leave() {
	p.stop()
	<-p.done
}

// WaitForMessage waits for a message whose text contains fragment.
func (s *BaseRelaySuite) WaitForMessage(p *Participant, fragment string) domain.Message {
	var found domain.Message
	s.Require().Eventually(func() bool {
		for _, m := range p.Session.View().Messages {
			if strings.Contains(m.Text, fragment) {
				found = m
				return true
			}
		}
		return false
	}, s.Config.Timeout, 20*time.Millisecond, "no message containing %q", fragment)
	return found
}
