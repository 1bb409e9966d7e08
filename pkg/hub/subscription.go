package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by WaitFor when nothing matched before the deadline.
	ErrTimeout = errors.New("hub: wait timed out")

	// ErrClosed is returned when waiting on a closed subscription.
	ErrClosed = errors.New("hub: subscription closed")
)

// Supplier produces the current value on demand, e.g. by reloading it from a store.
type Supplier[V any] func(ctx context.Context) (V, error)

// Subscription is a bounded FIFO of delivered values plus an open/closed status.
// Delivery is lossy: when the queue is full the newest value is dropped.
type Subscription[V any] struct {
	label string

	mu     sync.Mutex
	closed bool
	queue  chan V
	done   chan struct{}

	onClose func()
	onDrop  func()
	logger  *slog.Logger
}

func newSubscription[V any](label string, capacity int, cfg *config, onClose func()) *Subscription[V] {
	return &Subscription[V]{
		label:   label,
		queue:   make(chan V, capacity),
		done:    make(chan struct{}),
		onClose: onClose,
		onDrop:  cfg.onDrop,
		logger:  cfg.logger,
	}
}

// deliver never blocks the publisher.
func (s *Subscription[V]) deliver(v V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.queue <- v:
	default:
		s.logger.Warn("Subscription queue full, dropping newest value", "topic", s.label, "capacity", cap(s.queue))
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

// WaitFor drains the queue until match accepts a value or timeout elapses.
// On timeout the optional fallback is consulted once, which covers values that
// were published before the subscription existed.
func (s *Subscription[V]) WaitFor(ctx context.Context, timeout time.Duration, match func(V) bool, fallback Supplier[V]) (V, error) {
	var zero V

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case v := <-s.queue:
			if match(v) {
				return v, nil
			}
		case <-s.done:
			return zero, ErrClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			if fallback != nil {
				v, err := fallback(ctx)
				if err == nil && match(v) {
					return v, nil
				}
			}
			return zero, ErrTimeout
		}
	}
}

// Take blocks until a value arrives, the subscription closes, or ctx is done.
func (s *Subscription[V]) Take(ctx context.Context) (V, error) {
	var zero V
	select {
	case v := <-s.queue:
		return v, nil
	case <-s.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// C exposes the queue for select loops. It is never closed; use Done.
func (s *Subscription[V]) C() <-chan V {
	return s.queue
}

// Done is closed once the subscription is closed.
func (s *Subscription[V]) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery and releases the topic. It is idempotent.
func (s *Subscription[V]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}
}

// IsOpen reports whether Close has not been called yet.
func (s *Subscription[V]) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}
