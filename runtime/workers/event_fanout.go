package workers

import (
	"context"
	"log/slog"
	"sync"
)

// EventFanout delivers session notifications to in-process subscribers on
// its own goroutine, so that a slow or re-entrant subscriber never stalls
// the producer.
//
// Publish never blocks: the queue is unbounded and drained in order.
// Delivery stops when Run returns; whatever is still queued is dropped.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout[T any] struct {
	log   *slog.Logger
	mu    sync.Mutex
	queue []T
	wake  chan struct{}
	sinks []func(T)
}

func NewEventFanout[T any](log *slog.Logger) *EventFanout[T] {
	return &EventFanout[T]{log: log, wake: make(chan struct{}, 1)}
}

// Subscribe adds a sink. Sinks registered after an event was published
// may or may not see it.
func (w *EventFanout[T]) Subscribe(sink func(T)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sinks = append(w.sinks, sink)
}

func (w *EventFanout[T]) Publish(evt T) {
	w.mu.Lock()
	w.queue = append(w.queue, evt)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *EventFanout[T]) Run(ctx context.Context) error {
	for {
		select {
		case <-w.wake:
			w.drain(ctx)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

func (w *EventFanout[T]) drain(ctx context.Context) {
	for ctx.Err() == nil {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		sinks := w.sinks
		w.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, evt := range batch {
			for _, sink := range sinks {
				sink(evt)
			}
		}
	}
}
