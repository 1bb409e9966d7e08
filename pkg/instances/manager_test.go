package instances_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tsw/pkg/adapters/memory"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/hub"
	"github.com/aretw0/tsw/pkg/instances"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s *SlowStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	time.Sleep(2 * time.Millisecond) // Simulate IO
	return s.Store.Get(ctx, id)
}

func (s *SlowStore) Save(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	time.Sleep(2 * time.Millisecond) // Simulate IO
	return s.Store.Save(ctx, inst)
}

func (s *SlowStore) Update(ctx context.Context, id string, fn func(*domain.Instance) (*domain.Event, error)) (*domain.Instance, error) {
	return s.Store.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
		time.Sleep(2 * time.Millisecond) // Simulate IO
		return fn(inst)
	})
}

func TestManager_UpdateIsSerialized(t *testing.T) {
	store := &SlowStore{Store: memory.NewStore()}
	manager := instances.NewManager(store)
	ctx := context.Background()

	inst, err := manager.Create(ctx, domain.NewInstance("host", "race"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
				i.NextOutputBytePosition++
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := manager.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), loaded.NextOutputBytePosition, "read-modify-write must not lose updates")
}

func TestManager_UpdatePublishesSnapshot(t *testing.T) {
	store := memory.NewStore()
	h := hub.New[string, *domain.Instance]()
	var transitions []domain.TransitionEvent
	manager := instances.NewManager(store, instances.WithHub(h), instances.WithHooks(domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) { transitions = append(transitions, *e) },
	}))
	ctx := context.Background()

	inst, err := manager.Create(ctx, domain.NewInstance("host", "pub"))
	require.NoError(t, err)

	sub := h.SubscribeTopic(inst.ID)
	defer sub.Close()

	_, err = manager.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
		i.State = domain.StateIdle
		return domain.NewEvent(i.ID, domain.EventApplicationEnd, ""), nil
	})
	require.NoError(t, err)

	got, err := sub.WaitFor(ctx, time.Second, func(i *domain.Instance) bool { return i.State == domain.StateIdle }, nil)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)

	events, err := store.Events(ctx, inst.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventApplicationEnd, events[0].Type)

	require.Len(t, transitions, 1)
	assert.Equal(t, domain.StateDefined, transitions[0].From)
	assert.Equal(t, domain.StateIdle, transitions[0].To)
}

func TestManager_UpdateNoChangeAndErrors(t *testing.T) {
	store := memory.NewStore()
	manager := instances.NewManager(store)
	ctx := context.Background()

	inst, err := manager.Create(ctx, domain.NewInstance("host", "nochange"))
	require.NoError(t, err)

	sub := manager.Hub().SubscribeTopic(inst.ID)
	defer sub.Close()

	got, err := manager.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
		i.State = domain.StateBroken
		return nil, instances.ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateBroken, got.State, "the caller sees its local edit")

	loaded, err := manager.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDefined, loaded.State, "nothing was persisted")

	_, err = sub.WaitFor(ctx, 20*time.Millisecond, func(*domain.Instance) bool { return true }, nil)
	assert.ErrorIs(t, err, hub.ErrTimeout, "nothing was published")

	boom := errors.New("boom")
	_, err = manager.Update(ctx, inst.ID, func(*domain.Instance) (*domain.Event, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, err = manager.Update(ctx, "missing", func(*domain.Instance) (*domain.Event, error) { return nil, nil })
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
}

func TestManager_Delete(t *testing.T) {
	manager := instances.NewManager(memory.NewStore())
	ctx := context.Background()

	inst, err := manager.Create(ctx, domain.NewInstance("host", "gone"))
	require.NoError(t, err)
	require.NoError(t, manager.Delete(ctx, inst.ID))

	_, err = manager.Get(ctx, inst.ID)
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
}
