package ports

import (
	"context"

	"github.com/aretw0/tsw/pkg/domain"
)

// InstanceStore persists instances and their events.
// Returned instances are authoritative: callers must continue with them.
type InstanceStore interface {
	// Save persists the instance and returns the stored version.
	Save(ctx context.Context, inst *domain.Instance) (*domain.Instance, error)

	// SaveEventAndInstance appends the event and saves the instance as one unit.
	SaveEventAndInstance(ctx context.Context, ev *domain.Event, inst *domain.Instance) (*domain.Instance, error)

	// Update loads the instance, applies fn and saves the result together with
	// the event fn returns, as one unit that no other writer can interleave with,
	// including writers in other processes. An error from fn aborts the write and
	// is returned unchanged.
	// Returns domain.ErrInstanceNotFound if the instance does not exist.
	Update(ctx context.Context, id string, fn func(inst *domain.Instance) (*domain.Event, error)) (*domain.Instance, error)

	// Get loads an instance by ID.
	// Returns domain.ErrInstanceNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Instance, error)

	// FindPendingForHost returns the oldest instance of the host with a pending action.
	// Returns domain.ErrInstanceNotFound when there is none.
	FindPendingForHost(ctx context.Context, hostID string) (*domain.Instance, error)

	// ListByHost returns every instance owned by the host.
	ListByHost(ctx context.Context, hostID string) ([]*domain.Instance, error)

	// List returns every instance.
	List(ctx context.Context) ([]*domain.Instance, error)

	// Delete removes the instance and its events.
	Delete(ctx context.Context, id string) error

	// Events returns the most recent events of an instance, oldest first.
	Events(ctx context.Context, instanceID string, limit int) ([]*domain.Event, error)
}

// WorldStore persists worlds.
type WorldStore interface {
	SaveWorld(ctx context.Context, w *domain.World) (*domain.World, error)

	// GetWorld returns domain.ErrWorldNotFound if it does not exist.
	GetWorld(ctx context.Context, id string) (*domain.World, error)

	ListWorlds(ctx context.Context) ([]*domain.World, error)
}
