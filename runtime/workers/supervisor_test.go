package workers

import (
	"context"
	"fmt"
	"log/slog"
	"relaychat/errors"
	"relaychat/mocks"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func runSupervisor(sup *Supervisor, ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	return done
}

func TestSupervisor_RestartsAfterPanic(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	worker := mocks.NewMockWorker(ctrl)

	var calls atomic.Int32
	worker.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			panic("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	}).MinTimes(3)

	sup := NewSupervisor(logs.GetLoggerFromLevel(slog.LevelDebug), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(sup.Add(worker).(*Supervisor), ctx)

	req.Eventually(func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	req.NoError(sup.Err())
}

func TestSupervisor_RestartsAfterError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	worker := mocks.NewMockWorker(ctrl)

	gomock.InOrder(
		worker.EXPECT().Run(gomock.Any()).Return(fmt.Errorf("connection reset")),
		worker.EXPECT().Run(gomock.Any()).Return(nil),
	)

	sup := NewSupervisor(logs.GetLoggerFromLevel(slog.LevelDebug), 10*time.Millisecond)
	sup.Add(worker)
	done := runSupervisor(sup, context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		req.FailNow("supervisor did not return")
	}
}

func TestSupervisor_StopsOnSuccess(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	worker := mocks.NewMockWorker(ctrl)
	worker.EXPECT().Run(gomock.Any()).Return(nil).Times(1)

	sup := NewSupervisor(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	sup.Add(worker)

	select {
	case <-runSupervisor(sup, context.Background()):
	case <-time.After(time.Second):
		req.FailNow("supervisor did not return")
	}
}

func TestSupervisor_FatalErrorStopsEveryWorker(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	failing := mocks.NewMockWorker(ctrl)
	blocking := mocks.NewMockWorker(ctrl)

	bindErr := fmt.Errorf("%w: listen tcp :80: bind: permission denied", errors.ErrWorkerFatal)
	failing.EXPECT().Run(gomock.Any()).Return(bindErr).Times(1)
	blocking.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}).Times(1)

	sup := NewSupervisor(logs.GetLoggerFromLevel(slog.LevelDebug), 10*time.Millisecond)
	sup.Add(failing, blocking)

	select {
	case <-runSupervisor(sup, context.Background()):
	case <-time.After(time.Second):
		req.FailNow("supervisor did not stop after a fatal error")
	}
	req.ErrorIs(sup.Err(), errors.ErrWorkerFatal)
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	worker := mocks.NewMockWorker(ctrl)

	started := make(chan struct{})
	worker.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}).Times(1)

	sup := NewSupervisor(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	sup.Add(worker)
	done := runSupervisor(sup, context.Background())
	<-started
	sup.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.FailNow("supervisor did not stop")
	}
}
