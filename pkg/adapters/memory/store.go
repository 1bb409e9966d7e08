package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/tsw/pkg/domain"
)

// Store implements ports.InstanceStore and ports.WorldStore in memory.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*domain.Instance
	events    map[string][]*domain.Event
	worlds    map[string]*domain.World
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		instances: make(map[string]*domain.Instance),
		events:    make(map[string][]*domain.Event),
		worlds:    make(map[string]*domain.World),
	}
}

// Save persists a copy of the instance.
func (s *Store) Save(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(inst), nil
}

func (s *Store) save(inst *domain.Instance) *domain.Instance {
	stored := inst.Clone()
	stored.UpdatedAt = time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}
	s.instances[stored.ID] = stored
	return stored.Clone()
}

// SaveEventAndInstance appends the event and saves the instance under one lock.
func (s *Store) SaveEventAndInstance(ctx context.Context, ev *domain.Event, inst *domain.Instance) (*domain.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *ev
	s.events[inst.ID] = append(s.events[inst.ID], &copied)
	return s.save(inst), nil
}

// Update applies fn to a copy of the stored instance under the store lock.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.Instance) (*domain.Event, error)) (*domain.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[id]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	inst := current.Clone()
	ev, err := fn(inst)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		copied := *ev
		s.events[id] = append(s.events[id], &copied)
	}
	return s.save(inst), nil
}

// Get returns a copy so callers can't mutate store state by pointer.
func (s *Store) Get(ctx context.Context, id string) (*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// FindPendingForHost returns the oldest pending instance of the host.
func (s *Store) FindPendingForHost(ctx context.Context, hostID string) (*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Instance
	for _, inst := range s.instances {
		if inst.HostID != hostID || inst.PendingAction == nil {
			continue
		}
		if found == nil || inst.CreatedAt.Before(found.CreatedAt) {
			found = inst
		}
	}
	if found == nil {
		return nil, domain.ErrInstanceNotFound
	}
	return found.Clone(), nil
}

// ListByHost returns the instances owned by hostID.
func (s *Store) ListByHost(ctx context.Context, hostID string) ([]*domain.Instance, error) {
	return s.list(func(i *domain.Instance) bool { return i.HostID == hostID }), nil
}

// List returns every instance.
func (s *Store) List(ctx context.Context) ([]*domain.Instance, error) {
	return s.list(func(*domain.Instance) bool { return true }), nil
}

func (s *Store) list(keep func(*domain.Instance) bool) []*domain.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		if keep(inst) {
			out = append(out, inst.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Delete removes the instance and its events.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
	delete(s.events, id)
	return nil
}

// Events returns at most limit of the newest events, oldest first.
func (s *Store) Events(ctx context.Context, instanceID string, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[instanceID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*domain.Event, len(all))
	for i, ev := range all {
		copied := *ev
		out[i] = &copied
	}
	return out, nil
}

// SaveWorld persists a copy of the world.
func (s *Store) SaveWorld(ctx context.Context, w *domain.World) (*domain.World, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *w
	stored.UpdatedAt = time.Now().UTC()
	s.worlds[w.ID] = &stored
	ret := stored
	return &ret, nil
}

// GetWorld loads a world by ID.
func (s *Store) GetWorld(ctx context.Context, id string) (*domain.World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.worlds[id]
	if !ok {
		return nil, domain.ErrWorldNotFound
	}
	ret := *w
	return &ret, nil
}

// ListWorlds returns every world sorted by name.
func (s *Store) ListWorlds(ctx context.Context) ([]*domain.World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.World, 0, len(s.worlds))
	for _, w := range s.worlds {
		ret := *w
		out = append(out, &ret)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
