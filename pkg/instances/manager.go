package instances

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/hub"
	"github.com/aretw0/tsw/pkg/ports"
)

// ErrNoChange can be returned by a Mutation to skip persistence.
var ErrNoChange = errors.New("instances: no change")

// Mutation edits the freshly loaded instance in place.
// A non-nil event is stored atomically with the instance.
type Mutation func(inst *domain.Instance) (*domain.Event, error)

// Hub is the hub type instance snapshots are published on, keyed by instance ID.
type Hub = hub.Hub[string, *domain.Instance]

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes every read-modify-write of an instance, persists the
// result and publishes a snapshot. It uses reference counting to garbage
// collect unused locks.
type Manager struct {
	store ports.InstanceStore
	hub   *Hub

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithHub publishes every persisted instance on h.
func WithHub(h *Hub) Option {
	return func(m *Manager) {
		m.hub = h
	}
}

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithHooks reports state transitions.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given store.
func NewManager(store ports.InstanceStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hub == nil {
		m.hub = hub.New[string, *domain.Instance](hub.WithLogger(m.logger))
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock executes fn while holding the lock for the instance. It is not reentrant.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The caller's ctx may already be canceled; the lock must still go.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"instance_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Update applies fn to the freshly loaded instance and persists the result
// under the instance lock. The store runs the load and the save as one unit,
// so writers in other processes cannot overwrite each other.
func (m *Manager) Update(ctx context.Context, id string, fn Mutation) (*domain.Instance, error) {
	var result *domain.Instance
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var (
			before    domain.State
			unchanged *domain.Instance
		)
		saved, err := m.store.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
			before = inst.State
			ev, err := fn(inst)
			if errors.Is(err, ErrNoChange) {
				unchanged = inst.Clone()
			}
			return ev, err
		})
		if unchanged != nil {
			result = unchanged
			return nil
		}
		if err != nil {
			return err
		}

		m.hub.Publish(saved.ID, saved.Clone())
		if saved.State != before {
			m.hooks.Transition(ctx, &domain.TransitionEvent{InstanceID: id, From: before, To: saved.State})
		}
		result = saved
		return nil
	})
	return result, err
}

// Create persists a new instance and announces it.
func (m *Manager) Create(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	var saved *domain.Instance
	err := m.WithLock(ctx, inst.ID, func(ctx context.Context) error {
		var err error
		saved, err = m.store.Save(ctx, inst)
		if err != nil {
			return fmt.Errorf("failed to persist instance %s: %w", inst.ID, err)
		}
		m.hub.Publish(saved.ID, saved.Clone())
		return nil
	})
	return saved, err
}

// Delete removes the instance from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// Get loads the current instance without locking.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Instance, error) {
	return m.store.Get(ctx, id)
}

// Store returns the underlying instance store.
func (m *Manager) Store() ports.InstanceStore {
	return m.store
}

// Hub returns the hub snapshots are published on.
func (m *Manager) Hub() *Hub {
	return m.hub
}
