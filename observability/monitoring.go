package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "relaychat/session"

// SessionMetrics counts what happens to a chat session.
// A nil *SessionMetrics is valid and records nothing.
type SessionMetrics struct {
	log               *slog.Logger
	connectAttempts   metric.Int64Counter
	connectFailures   metric.Int64Counter
	reconnects        metric.Int64Counter
	stateTransitions  metric.Int64Counter
	messagesSent      metric.Int64Counter
	sendFailures      metric.Int64Counter
	messagesReceived  metric.Int64Counter
	framesDropped     metric.Int64Counter
	participantEvents metric.Int64Counter
}

// NewSessionMetrics registers the session instruments on provider.
// A nil provider falls back to a no-op provider.
func NewSessionMetrics(log *slog.Logger, provider metric.MeterProvider) (*SessionMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &SessionMetrics{log: log}
	var err error
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.connectAttempts, "relaychat.connect.attempts", "Transport connect attempts"},
		{&m.connectFailures, "relaychat.connect.failures", "Failed transport connect attempts"},
		{&m.reconnects, "relaychat.reconnects.scheduled", "Reconnect attempts scheduled with backoff"},
		{&m.stateTransitions, "relaychat.state.transitions", "Session status transitions"},
		{&m.messagesSent, "relaychat.messages.sent", "Chat messages sent"},
		{&m.sendFailures, "relaychat.messages.failed", "Queued chat messages the transport failed to write"},
		{&m.messagesReceived, "relaychat.messages.received", "Chat messages received"},
		{&m.framesDropped, "relaychat.frames.dropped", "Inbound frames that were not chat messages"},
		{&m.participantEvents, "relaychat.participants.events", "Participant join and leave events"},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *SessionMetrics) ConnectAttempt(ctx context.Context, resumed bool) {
	if m == nil {
		return
	}
	m.connectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("resumed", resumed)))
}

func (m *SessionMetrics) ConnectFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.connectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *SessionMetrics) ReconnectScheduled(ctx context.Context, attempt int) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))
}

func (m *SessionMetrics) StateChanged(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *SessionMetrics) MessageSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.messagesSent.Add(ctx, 1)
}

func (m *SessionMetrics) SendFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sendFailures.Add(ctx, 1)
}

func (m *SessionMetrics) MessageReceived(ctx context.Context) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1)
}

func (m *SessionMetrics) FrameDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.framesDropped.Add(ctx, 1)
	m.log.Debug("Dropped non chat frame")
}

func (m *SessionMetrics) ParticipantEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.participantEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
