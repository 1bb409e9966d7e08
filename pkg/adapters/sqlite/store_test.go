package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/tsw/pkg/adapters/sqlite"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "tsw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunInstanceStoreContract(t, openStore(t))
}

func TestSQLiteStore_WorldContract(t *testing.T) {
	ports.RunWorldStoreContract(t, openStore(t))
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer store.Close()

	inst := domain.NewInstance("host", "mem")
	_, err = store.Save(context.Background(), inst)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), inst.ID)
	assert.NoError(t, err)
}

func TestSQLiteStore_RoundTripsActionFields(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond)
	inst := domain.NewInstance("host", "fields")
	inst.State = domain.StateModMenu
	inst.CurrentAction = domain.ActionSetLoadedMods.Ptr()
	inst.ActionStartTime = &started
	inst.PendingOptions = map[int]string{1: "Mod1 (enabled)", 2: "Mod2 (disabled)"}
	inst.AutomaticallyForwardPort = true
	inst.Password = "hunter2"
	inst.WorldID = "w-1"
	inst.NextOutputBytePosition = 4096

	_, err := store.Save(ctx, inst)
	require.NoError(t, err)

	loaded, err := store.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateModMenu, loaded.State)
	require.NotNil(t, loaded.CurrentAction)
	assert.Equal(t, domain.ActionSetLoadedMods, *loaded.CurrentAction)
	require.NotNil(t, loaded.ActionStartTime)
	assert.True(t, started.Equal(*loaded.ActionStartTime))
	assert.Equal(t, inst.PendingOptions, loaded.PendingOptions)
	assert.True(t, loaded.AutomaticallyForwardPort)
	assert.Equal(t, "hunter2", loaded.Password)
	assert.Equal(t, "w-1", loaded.WorldID)
	assert.Equal(t, int64(4096), loaded.NextOutputBytePosition)

	loaded.CurrentAction = nil
	loaded.ActionStartTime = nil
	_, err = store.Save(ctx, loaded)
	require.NoError(t, err)

	again, err := store.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Nil(t, again.CurrentAction)
	assert.Nil(t, again.ActionStartTime)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsw.db")
	ctx := context.Background()

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	inst := domain.NewInstance("host", "durable")
	_, err = store.SaveEventAndInstance(ctx, domain.NewEvent(inst.ID, domain.EventOutput, "hello"), inst)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", loaded.Name)

	events, err := store.Events(ctx, inst.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Content)
}

func TestSQLiteStore_UpdateAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsw.db")
	ctx := context.Background()

	daemon, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer daemon.Close()
	cli, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer cli.Close()

	inst := domain.NewInstance("host", "shared")
	inst.State = domain.StateRunning
	inst.PendingAction = nil
	_, err = daemon.Save(ctx, inst)
	require.NoError(t, err)

	inside := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := daemon.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
			close(inside)
			time.Sleep(100 * time.Millisecond)
			i.NextOutputBytePosition = 42
			return domain.NewEvent(i.ID, domain.EventOutput, "tick"), nil
		})
		done <- err
	}()

	<-inside
	requested, err := cli.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
		i.PendingAction = domain.ActionShutDown.Ptr()
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), requested.NextOutputBytePosition, "the second writer sees the first commit")
	require.NoError(t, <-done)

	loaded, err := daemon.Get(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.PendingAction, "the request survives the concurrent write")
	assert.Equal(t, domain.ActionShutDown, *loaded.PendingAction)
	assert.Equal(t, int64(42), loaded.NextOutputBytePosition)
}
