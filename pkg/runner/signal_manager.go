package runner

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalManager turns OS signals into a two-stage shutdown. The first SIGINT or
// SIGTERM closes Drain, which a Runner takes as its stop source so the action
// in flight can finish. A second signal cancels Context, interrupting it.
type SignalManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	signals   chan os.Signal
	drain     chan struct{}
	drainOnce sync.Once
	stopOnce  sync.Once
}

// NewSignalManager creates a new manager and immediately starts listening for signals.
func NewSignalManager() *SignalManager {
	sm := &SignalManager{
		signals: make(chan os.Signal, 2),
		drain:   make(chan struct{}),
	}
	sm.ctx, sm.cancel = context.WithCancel(context.Background())
	signal.Notify(sm.signals, os.Interrupt, syscall.SIGTERM)
	go sm.listen()
	return sm
}

// Context is canceled by the second signal or by Stop.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Drain is closed by the first signal.
func (sm *SignalManager) Drain() <-chan struct{} {
	return sm.drain
}

// RequestDrain closes Drain as if a first signal had arrived.
func (sm *SignalManager) RequestDrain() {
	sm.drainOnce.Do(func() { close(sm.drain) })
}

// Stop permanently stops the signal listener and cancels Context.
func (sm *SignalManager) Stop() {
	sm.stopOnce.Do(func() {
		signal.Stop(sm.signals)
		sm.cancel()
	})
}

func (sm *SignalManager) listen() {
	draining := false
	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-sm.signals:
			if !draining {
				draining = true
				sm.RequestDrain()
				continue
			}
			sm.cancel()
			return
		}
	}
}
