package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSessionMetrics_CountsOnManualReader(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewSessionMetrics(logs.GetLoggerFromLevel(slog.LevelDebug), provider)
	req.NoError(err)

	m.ConnectAttempt(ctx, false)
	m.ConnectAttempt(ctx, true)
	m.MessageSent(ctx)
	m.SendFailed(ctx)
	m.FrameDropped(ctx)

	var rm metricdata.ResourceMetrics
	req.NoError(reader.Collect(ctx, &rm))
	req.Len(rm.ScopeMetrics, 1)

	totals := make(map[string]int64)
	for _, metric := range rm.ScopeMetrics[0].Metrics {
		sum, ok := metric.Data.(metricdata.Sum[int64])
		req.True(ok)
		for _, point := range sum.DataPoints {
			totals[metric.Name] += point.Value
		}
	}
	req.Equal(int64(2), totals["relaychat.connect.attempts"])
	req.Equal(int64(1), totals["relaychat.messages.sent"])
	req.Equal(int64(1), totals["relaychat.messages.failed"])
	req.Equal(int64(1), totals["relaychat.frames.dropped"])
}

func TestSessionMetrics_NilIsNoop(t *testing.T) {
	var m *SessionMetrics
	require.NotPanics(t, func() {
		m.ConnectAttempt(context.Background(), false)
		m.MessageReceived(context.Background())
	})
}
