package runtime

import (
	"context"
	"relaychat/errors"
	"sync"
)

type task struct {
	op       func()
	finished chan struct{}
}

// Loop serializes every session mutation onto one goroutine.
// Transport callbacks, timers and user calls all go through it, so the
// session state needs no lock as long as it is only touched from ops.
type Loop struct {
	tasks     chan task
	done      chan struct{}
	once      sync.Once
	afterEach func()
}

func NewLoop(bufferSize int) *Loop {
	return &Loop{
		tasks: make(chan task, bufferSize),
		done:  make(chan struct{}),
	}
}

// AfterEach registers fn to run on the loop after every op, before Do
// returns to its caller. It must be set before Run.
func (l *Loop) AfterEach(fn func()) {
	l.afterEach = fn
}

// Run executes ops until ctx is canceled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case t := <-l.tasks:
			t.op()
			if l.afterEach != nil {
				l.afterEach()
			}
			if t.finished != nil {
				close(t.finished)
			}
		}
	}
}

// Post enqueues op without waiting for it. It returns false once the loop is stopped.
func (l *Loop) Post(op func()) bool {
	return l.enqueue(task{op: op})
}

func (l *Loop) enqueue(t task) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- t:
		return true
	case <-l.done:
		return false
	}
}

// Do runs op on the loop and waits for it to finish.
// It must never be called from inside an op.
func (l *Loop) Do(ctx context.Context, op func()) error {
	finished := make(chan struct{})
	if !l.enqueue(task{op: op, finished: finished}) {
		return errors.ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return errors.ErrSessionClosed
		}
	}
}

func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *Loop) Done() <-chan struct{} {
	return l.done
}
