package domain_test

import (
	"testing"

	"github.com/aretw0/tsw/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsApplicable_Table(t *testing.T) {
	stop := []domain.Action{domain.ActionShutDown, domain.ActionShutDownNoSave, domain.ActionTerminate}

	expected := map[domain.State][]domain.Action{
		domain.StateDefined:                        {domain.ActionSetUp, domain.ActionDelete},
		domain.StateValid:                          {domain.ActionSetUp, domain.ActionDelete},
		domain.StateInvalid:                        {domain.ActionDelete},
		domain.StateIdle:                           {domain.ActionBootUp, domain.ActionDelete},
		domain.StateBroken:                         {domain.ActionRecreate, domain.ActionDelete},
		domain.StateBootingUp:                      stop,
		domain.StateWorldMenu:                      append([]domain.Action{domain.ActionGoToModMenu, domain.ActionCreateWorld, domain.ActionRunServer}, stop...),
		domain.StateModMenu:                        append([]domain.Action{domain.ActionSetLoadedMods}, stop...),
		domain.StateChangingModState:               stop,
		domain.StateWorldSizePrompt:                stop,
		domain.StateWorldDifficultyPrompt:          stop,
		domain.StateWorldNamePrompt:                stop,
		domain.StateWorldSeedPrompt:                stop,
		domain.StateCreatingWorld:                  stop,
		domain.StateMaxPlayersPrompt:               stop,
		domain.StatePortPrompt:                     stop,
		domain.StateAutomaticallyForwardPortPrompt: stop,
		domain.StatePasswordPrompt:                 stop,
		domain.StateRunning:                        stop,
		domain.StatePortConflict:                   stop,
	}

	require.Len(t, domain.AllStates(), len(expected))

	for _, s := range domain.AllStates() {
		legal, ok := expected[s]
		require.True(t, ok, "state %s missing from expectation", s)
		for _, a := range domain.AllActions() {
			want := false
			for _, l := range legal {
				if l == a {
					want = true
				}
			}
			assert.Equal(t, want, domain.IsApplicable(s, a), "IsApplicable(%s, %s)", s, a)
		}
		assert.ElementsMatch(t, legal, s.ApplicableActions())
	}
}

func TestState_IsActive(t *testing.T) {
	inactive := []domain.State{domain.StateDefined, domain.StateValid, domain.StateInvalid, domain.StateIdle, domain.StateBroken}
	for _, s := range domain.AllStates() {
		isInactive := s.OneOf(inactive...)
		assert.Equal(t, !isInactive, s.IsActive(), "state %s", s)
	}
}

func TestActiveStates_AllowStopActions(t *testing.T) {
	for _, s := range domain.AllStates() {
		if !s.IsActive() {
			assert.False(t, domain.IsApplicable(s, domain.ActionTerminate), "inactive %s must not accept TERMINATE", s)
			continue
		}
		assert.True(t, domain.IsApplicable(s, domain.ActionShutDown), s)
		assert.True(t, domain.IsApplicable(s, domain.ActionShutDownNoSave), s)
		assert.True(t, domain.IsApplicable(s, domain.ActionTerminate), s)
		assert.False(t, domain.IsApplicable(s, domain.ActionDelete), "active %s must not accept DELETE", s)
	}
}

func TestParse(t *testing.T) {
	s, err := domain.ParseState("WORLD_MENU")
	require.NoError(t, err)
	assert.Equal(t, domain.StateWorldMenu, s)

	_, err = domain.ParseState("NOPE")
	assert.Error(t, err)

	a, err := domain.ParseAction("SHUT_DOWN_NO_SAVE")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionShutDownNoSave, a)

	_, err = domain.ParseAction("reboot")
	assert.Error(t, err)

	assert.False(t, domain.IsApplicable(domain.State("UNKNOWN"), domain.ActionDelete))
}
