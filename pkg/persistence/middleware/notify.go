package middleware

import (
	"context"

	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/ports"
)

type notifyMiddleware struct {
	ports.InstanceStore
	notifier ports.Notifier
}

// NewNotifyMiddleware reports every successful write to notifier.
func NewNotifyMiddleware(notifier ports.Notifier) Middleware {
	return func(next ports.InstanceStore) ports.InstanceStore {
		return &notifyMiddleware{InstanceStore: next, notifier: notifier}
	}
}

func (m *notifyMiddleware) Save(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	saved, err := m.InstanceStore.Save(ctx, inst)
	if err != nil {
		return nil, err
	}
	m.notifier.InstanceChanged(saved.Public())
	return saved, nil
}

func (m *notifyMiddleware) SaveEventAndInstance(ctx context.Context, ev *domain.Event, inst *domain.Instance) (*domain.Instance, error) {
	saved, err := m.InstanceStore.SaveEventAndInstance(ctx, ev, inst)
	if err != nil {
		return nil, err
	}
	copied := *ev
	m.notifier.EventRecorded(&copied)
	m.notifier.InstanceChanged(saved.Public())
	return saved, nil
}

func (m *notifyMiddleware) Update(ctx context.Context, id string, fn func(*domain.Instance) (*domain.Event, error)) (*domain.Instance, error) {
	var ev *domain.Event
	saved, err := m.InstanceStore.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
		var err error
		ev, err = fn(inst)
		return ev, err
	})
	if err != nil {
		return nil, err
	}
	if ev != nil {
		copied := *ev
		m.notifier.EventRecorded(&copied)
	}
	m.notifier.InstanceChanged(saved.Public())
	return saved, nil
}
