package workers

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"relaychat/contract"
	"relaychat/errors"
	"sync"
	"time"
)

const defaultRestartDelay = 200 * time.Millisecond

// Supervisor runs the long-lived workers of a process (the relay hub, the
// HTTP listener). A worker that panics or fails is restarted after
// restartDelay. A worker that fails with errors.ErrWorkerFatal stops the
// whole supervisor, and Err reports why.
type Supervisor struct {
	log          *slog.Logger
	restartDelay time.Duration
	wg           sync.WaitGroup
	workers      []contract.Worker

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error
}

func NewSupervisor(log *slog.Logger, restartDelay time.Duration) *Supervisor {
	if restartDelay <= 0 {
		restartDelay = defaultRestartDelay
	}
	return &Supervisor{log: log, restartDelay: restartDelay}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every added worker and blocks until all of them returned.
// Cancelling ctx or calling Stop ends them.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start runs one worker under supervision in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		for restarts := 0; ; restarts++ {
			err := runProtected(ctx, worker)
			switch {
			case err == nil:
				s.log.Info("Worker finished", "name", name)
				return
			case ctx.Err() != nil:
				s.log.Info("Worker stopped", "name", name)
				return
			case goerrors.Is(err, errors.ErrWorkerFatal):
				s.log.Error("Worker failed for good, stopping", "name", name, "error", err)
				s.fail(err)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "restarts", restarts+1, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartDelay):
			}
		}
	}()
}

// Stop cancels every worker. Run returns once they all did.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Err returns the first fatal worker error, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func runProtected(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}
