package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestEventFanout_DeliversInOrderToEverySink(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	fanout := NewEventFanout[int](log)

	var mu sync.Mutex
	var first, second []int
	done := make(chan struct{})
	fanout.Subscribe(func(v int) {
		mu.Lock()
		defer mu.Unlock()
		first = append(first, v)
	})
	fanout.Subscribe(func(v int) {
		mu.Lock()
		defer mu.Unlock()
		second = append(second, v)
		if v == 99 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// Given many events published without a reader keeping up
	for i := range 100 {
		fanout.Publish(i)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("events were not delivered in time")
	}
	mu.Lock()
	defer mu.Unlock()
	req.Len(first, 100)
	req.Equal(first, second)
	for i, v := range first {
		req.Equal(i, v)
	}
}

func TestEventFanout_SinkMayPublish(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	fanout := NewEventFanout[string](log)

	got := make(chan string, 2)
	fanout.Subscribe(func(v string) {
		got <- v
		if v == "ping" {
			// A re-entrant sink must not deadlock the fanout
			fanout.Publish("pong")
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	fanout.Publish("ping")
	for _, want := range []string{"ping", "pong"} {
		select {
		case v := <-got:
			req.Equal(want, v)
		case <-time.After(time.Second):
			req.Fail("missing event", want)
		}
	}
}

func TestEventFanout_StopsOnContextDone(t *testing.T) {
	req := require.New(t)
	fanout := NewEventFanout[int](logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.NoError(fanout.Run(ctx))
}
