package ports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tsw/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunInstanceStoreContract runs a suite of tests to verify that an InstanceStore
// implementation adheres to the defined interface contract.
func RunInstanceStoreContract(t *testing.T, store InstanceStore) {
	ctx := context.Background()
	host := "contract-host-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Get", func(t *testing.T) {
		inst := domain.NewInstance(host, "alpha")
		inst.LoadedMods = []string{"CalamityMod"}
		inst.Options = map[int]string{1: "Forest"}
		inst.ModsToEnable = []string{"CalamityMod", "BossChecklist"}

		saved, err := store.Save(ctx, inst)
		require.NoError(t, err, "Save should not return error")
		assert.Equal(t, inst.ID, saved.ID)

		loaded, err := store.Get(ctx, inst.ID)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, domain.StateDefined, loaded.State)
		require.NotNil(t, loaded.PendingAction)
		assert.Equal(t, domain.ActionSetUp, *loaded.PendingAction)
		assert.Equal(t, []string{"CalamityMod"}, loaded.LoadedMods)
		assert.Equal(t, map[int]string{1: "Forest"}, loaded.Options)
		assert.Equal(t, []string{"CalamityMod", "BossChecklist"}, loaded.ModsToEnable)
		assert.NotNil(t, loaded.PendingOptions)
	})

	t.Run("Stored copy is isolated", func(t *testing.T) {
		inst := domain.NewInstance(host, "isolated")
		_, err := store.Save(ctx, inst)
		require.NoError(t, err)

		inst.State = domain.StateBroken
		loaded, err := store.Get(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateDefined, loaded.State)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+host)
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
	})

	t.Run("SaveEventAndInstance", func(t *testing.T) {
		inst := domain.NewInstance(host, "events")
		inst.PendingAction = nil
		_, err := store.Save(ctx, inst)
		require.NoError(t, err)

		inst.State = domain.StateBroken
		inst.Error = "boom"
		ev := domain.NewEvent(inst.ID, domain.EventError, "boom")
		saved, err := store.SaveEventAndInstance(ctx, ev, inst)
		require.NoError(t, err)
		assert.Equal(t, domain.StateBroken, saved.State)

		events, err := store.Events(ctx, inst.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventError, events[0].Type)
		assert.Equal(t, "boom", events[0].Content)

		loaded, err := store.Get(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, "boom", loaded.Error)
	})

	t.Run("Update", func(t *testing.T) {
		inst := domain.NewInstance(host, "update")
		_, err := store.Save(ctx, inst)
		require.NoError(t, err)

		saved, err := store.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
			i.State = domain.StateValid
			i.PendingAction = nil
			return domain.NewEvent(i.ID, domain.EventOutput, "ready"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StateValid, saved.State)

		loaded, err := store.Get(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateValid, loaded.State)
		assert.Nil(t, loaded.PendingAction)

		boom := errors.New("boom")
		_, err = store.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
			i.State = domain.StateBroken
			return domain.NewEvent(i.ID, domain.EventError, "boom"), boom
		})
		assert.ErrorIs(t, err, boom)

		loaded, err = store.Get(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateValid, loaded.State, "a failed mutation is not saved")

		events, err := store.Events(ctx, inst.ID, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "ready", events[0].Content)

		_, err = store.Update(ctx, "missing-"+host, func(*domain.Instance) (*domain.Event, error) { return nil, nil })
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
	})

	t.Run("Concurrent updates are not lost", func(t *testing.T) {
		inst := domain.NewInstance(host, "counter")
		_, err := store.Save(ctx, inst)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
					i.NextOutputBytePosition++
					return nil, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		loaded, err := store.Get(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), loaded.NextOutputBytePosition)
	})

	t.Run("FindPendingForHost", func(t *testing.T) {
		other := host + "-pending"
		_, err := store.FindPendingForHost(ctx, other)
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)

		idle := domain.NewInstance(other, "idle")
		idle.PendingAction = nil
		_, err = store.Save(ctx, idle)
		require.NoError(t, err)

		_, err = store.FindPendingForHost(ctx, other)
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)

		pending := domain.NewInstance(other, "pending")
		_, err = store.Save(ctx, pending)
		require.NoError(t, err)

		found, err := store.FindPendingForHost(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, pending.ID, found.ID)

		_, err = store.FindPendingForHost(ctx, other+"-elsewhere")
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
	})

	t.Run("ListByHost and Delete", func(t *testing.T) {
		other := host + "-list"
		a := domain.NewInstance(other, "a")
		b := domain.NewInstance(other, "b")
		_, err := store.Save(ctx, a)
		require.NoError(t, err)
		_, err = store.Save(ctx, b)
		require.NoError(t, err)
		_, err = store.SaveEventAndInstance(ctx, domain.NewEvent(a.ID, domain.EventOutput, "hello"), a)
		require.NoError(t, err)

		list, err := store.ListByHost(ctx, other)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		require.NoError(t, store.Delete(ctx, a.ID))
		_, err = store.Get(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)

		events, err := store.Events(ctx, a.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, events)

		list, err = store.ListByHost(ctx, other)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Events limit keeps the newest", func(t *testing.T) {
		inst := domain.NewInstance(host, "limit")
		_, err := store.Save(ctx, inst)
		require.NoError(t, err)
		for _, c := range []string{"one", "two", "three"} {
			ev := domain.NewEvent(inst.ID, domain.EventOutput, c)
			_, err := store.SaveEventAndInstance(ctx, ev, inst)
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}

		events, err := store.Events(ctx, inst.ID, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "two", events[0].Content)
		assert.Equal(t, "three", events[1].Content)
	})
}

// RunWorldStoreContract verifies a WorldStore implementation.
func RunWorldStoreContract(t *testing.T, store WorldStore) {
	ctx := context.Background()

	w := domain.NewWorld("host", "Forest-"+time.Now().Format("150405.000000"), domain.WorldSizeSmall, domain.DifficultyClassic)
	_, err := store.SaveWorld(ctx, w)
	require.NoError(t, err)

	loaded, err := store.GetWorld(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.Name, loaded.Name)
	assert.False(t, loaded.Created)

	loaded.Created = true
	_, err = store.SaveWorld(ctx, loaded)
	require.NoError(t, err)

	again, err := store.GetWorld(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, again.Created)

	list, err := store.ListWorlds(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, err = store.GetWorld(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWorldNotFound)
}
