package middleware_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/tsw/pkg/adapters/memory"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{`steam:\d+`, `(?i)player \w+`})
	if err != nil {
		t.Fatalf("NewPIIMiddleware failed: %v", err)
	}
	store := mw(underlying)
	ctx := context.Background()

	inst := domain.NewInstance("host", "pii")
	ev := domain.NewEvent(inst.ID, domain.EventOutput, "Player Alice has joined. steam:76561198000000000 ok")
	if _, err := store.SaveEventAndInstance(ctx, ev, inst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if ev.Content != "Player Alice has joined. steam:76561198000000000 ok" {
		t.Error("Middleware modified the caller's event")
	}

	events, err := underlying.Events(ctx, inst.ID, 0)
	if err != nil || len(events) != 1 {
		t.Fatalf("Expected one stored event, got %d (%v)", len(events), err)
	}
	if want := "[redacted] has joined. [redacted] ok"; events[0].Content != want {
		t.Errorf("Expected %q, got %q", want, events[0].Content)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	instances []*domain.Instance
	events    []*domain.Event
}

func (n *recordingNotifier) InstanceChanged(inst *domain.Instance) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.instances = append(n.instances, inst)
}

func (n *recordingNotifier) EventRecorded(ev *domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func TestNotifyMiddleware(t *testing.T) {
	notifier := &recordingNotifier{}
	store := middleware.Chain(memory.NewStore(), middleware.NewNotifyMiddleware(notifier))
	ctx := context.Background()

	inst := domain.NewInstance("host", "notify")
	inst.Password = "hunter2"
	if _, err := store.Save(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveEventAndInstance(ctx, domain.NewEvent(inst.ID, domain.EventInput, "1"), inst); err != nil {
		t.Fatal(err)
	}

	if len(notifier.instances) != 2 || len(notifier.events) != 1 {
		t.Fatalf("Expected 2 instance and 1 event notifications, got %d and %d", len(notifier.instances), len(notifier.events))
	}
	for _, got := range notifier.instances {
		if got.Password != "" {
			t.Error("Notifications must not carry the password")
		}
	}
}

func TestChain_Order(t *testing.T) {
	// Redaction runs before notification, so listeners never see raw content.
	notifier := &recordingNotifier{}
	pii, err := middleware.NewPIIMiddleware([]string{"secret"})
	if err != nil {
		t.Fatal(err)
	}
	underlying := memory.NewStore()
	store := middleware.Chain(underlying, pii, middleware.NewNotifyMiddleware(notifier))

	inst := domain.NewInstance("host", "chain")
	if _, err := store.SaveEventAndInstance(context.Background(), domain.NewEvent(inst.ID, domain.EventOutput, "a secret"), inst); err != nil {
		t.Fatal(err)
	}
	if len(notifier.events) != 1 || notifier.events[0].Content != "a [redacted]" {
		t.Errorf("Expected redacted notification, got %+v", notifier.events)
	}
}

func TestChain_Update(t *testing.T) {
	notifier := &recordingNotifier{}
	pii, err := middleware.NewPIIMiddleware([]string{"secret"})
	if err != nil {
		t.Fatal(err)
	}
	underlying := memory.NewStore()
	store := middleware.Chain(underlying, pii, middleware.NewNotifyMiddleware(notifier))
	ctx := context.Background()

	inst := domain.NewInstance("host", "chain-update")
	inst.Password = "hunter2"
	if _, err := underlying.Save(ctx, inst); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
		i.NextOutputBytePosition = 9
		return domain.NewEvent(i.ID, domain.EventOutput, "a secret"), nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	events, err := underlying.Events(ctx, inst.ID, 0)
	if err != nil || len(events) != 1 || events[0].Content != "a [redacted]" {
		t.Errorf("Expected a redacted stored event, got %+v (%v)", events, err)
	}
	if len(notifier.events) != 1 || notifier.events[0].Content != "a [redacted]" {
		t.Errorf("Expected redacted notification, got %+v", notifier.events)
	}
	if len(notifier.instances) != 1 || notifier.instances[0].Password != "" || notifier.instances[0].NextOutputBytePosition != 9 {
		t.Errorf("Expected one public snapshot, got %+v", notifier.instances)
	}
}
