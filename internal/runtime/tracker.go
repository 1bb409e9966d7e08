package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tsw/internal/interpreter"
	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/instances"
	"github.com/aretw0/tsw/pkg/ports"
	"github.com/aretw0/tsw/pkg/watcher"
)

// Tracker is the registry of output watchers, one per tracked instance.
type Tracker struct {
	ctx      context.Context
	manager  *instances.Manager
	sessions ports.SessionProbe
	settle   time.Duration
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithProbeSettle sets how long interpreters wait for the multiplexer to agree with a file event.
func WithProbeSettle(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.settle = d
		}
	}
}

// WithTrackerHooks reports output volume of every tracked instance.
func WithTrackerHooks(hooks domain.LifecycleHooks) TrackerOption {
	return func(t *Tracker) {
		t.hooks = hooks
	}
}

// WithTrackerLogger configures a logger for the Tracker and its interpreters.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates an empty registry. ctx bounds the lifetime of every interpreter.
func NewTracker(ctx context.Context, manager *instances.Manager, sessions ports.SessionProbe, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		ctx:      ctx,
		manager:  manager,
		sessions: sessions,
		settle:   interpreter.DefaultSettle,
		logger:   logging.NewNop(),
		watchers: make(map[string]*watcher.Watcher),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts watching the output file of inst from its saved offset.
// Tracking an already tracked instance is a no-op.
func (t *Tracker) Track(inst *domain.Instance) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.watchers[inst.ID]; ok {
		return nil
	}

	consumer := interpreter.New(t.ctx, inst.ID, t.manager, t.sessions,
		interpreter.WithSettle(t.settle),
		interpreter.WithHooks(t.hooks),
		interpreter.WithLogger(t.logger.With("component", "interpreter")),
	)
	w := watcher.New(inst.OutputPath(), inst.NextOutputBytePosition, consumer,
		watcher.WithLogger(t.logger.With("component", "watcher", "instance_id", inst.ID)),
	)
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to track instance %s: %w", inst.ID, err)
	}
	t.watchers[inst.ID] = w
	t.logger.Debug("Tracking instance output", "instance_id", inst.ID, "path", w.Path(), "offset", inst.NextOutputBytePosition)
	return nil
}

// Untrack stops and forgets the watcher of the instance, if any.
func (t *Tracker) Untrack(id string) {
	t.mu.Lock()
	w, ok := t.watchers[id]
	delete(t.watchers, id)
	t.mu.Unlock()

	if ok {
		// Stop waits for the watcher goroutine, which may be inside an
		// instance update, so it runs outside the registry lock.
		w.Stop()
		t.logger.Debug("Stopped tracking instance output", "instance_id", id)
	}
}

// Lookup returns the watcher of the instance.
func (t *Tracker) Lookup(id string) (*watcher.Watcher, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.watchers[id]
	return w, ok
}

// Each calls fn for every tracked instance. fn must not call back into the Tracker.
func (t *Tracker) Each(fn func(id string, w *watcher.Watcher)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, w := range t.watchers {
		fn(id, w)
	}
}

// StopReading stops output parsing for the instance while keeping
// created/deleted notifications. It reports whether the instance was tracked.
func (t *Tracker) StopReading(id string) bool {
	w, ok := t.Lookup(id)
	if ok {
		w.StopReadingFile()
	}
	return ok
}

// Close untracks every instance.
func (t *Tracker) Close() {
	var ids []string
	t.Each(func(id string, _ *watcher.Watcher) {
		ids = append(ids, id)
	})
	for _, id := range ids {
		t.Untrack(id)
	}
}
