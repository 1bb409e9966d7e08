package instances

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/tsw/pkg/adapters/memory"
	"github.com/aretw0/tsw/pkg/domain"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()
	count := 1000

	// 1. Create, touch and delete many instances
	for i := 0; i < count; i++ {
		inst := domain.NewInstance("host", fmt.Sprintf("instance-%d", i))
		_, _ = mgr.Create(ctx, inst)
		_, _ = mgr.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) { return nil, nil })
		_ = mgr.Delete(ctx, inst.ID)
	}

	// 2. Count locks remaining in map
	lockCount := len(mgr.locks)
	t.Logf("Instances Created: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
