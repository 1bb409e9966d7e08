package runner

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalManager_TwoStages(t *testing.T) {
	sm := NewSignalManager()
	defer sm.Stop()

	assert.NoError(t, sm.Context().Err())

	sm.signals <- os.Interrupt
	select {
	case <-sm.Drain():
	case <-time.After(time.Second):
		t.Fatal("first signal did not close Drain")
	}
	assert.NoError(t, sm.Context().Err(), "first signal must not cancel the context")

	sm.signals <- os.Interrupt
	select {
	case <-sm.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("second signal did not cancel the context")
	}
	assert.ErrorIs(t, sm.Context().Err(), context.Canceled)
}

func TestSignalManager_Stop(t *testing.T) {
	sm := NewSignalManager()

	sm.RequestDrain()
	sm.RequestDrain()
	sm.Stop()
	sm.Stop()

	assert.ErrorIs(t, sm.Context().Err(), context.Canceled)
	select {
	case <-sm.Drain():
	default:
		t.Fatal("Drain should be closed")
	}
}
