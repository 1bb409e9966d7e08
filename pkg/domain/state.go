package domain

import "fmt"

// State is the position of an instance in its menu/lifecycle automaton.
type State string

const (
	StateDefined                        State = "DEFINED"
	StateValid                          State = "VALID"
	StateInvalid                        State = "INVALID"
	StateIdle                           State = "IDLE"
	StateBroken                         State = "BROKEN"
	StateBootingUp                      State = "BOOTING_UP"
	StateWorldMenu                      State = "WORLD_MENU"
	StateModMenu                        State = "MOD_MENU"
	StateChangingModState               State = "CHANGING_MOD_STATE"
	StateWorldSizePrompt                State = "WORLD_SIZE_PROMPT"
	StateWorldDifficultyPrompt          State = "WORLD_DIFFICULTY_PROMPT"
	StateWorldNamePrompt                State = "WORLD_NAME_PROMPT"
	StateWorldSeedPrompt                State = "WORLD_SEED_PROMPT"
	StateCreatingWorld                  State = "CREATING_WORLD"
	StateMaxPlayersPrompt               State = "MAX_PLAYERS_PROMPT"
	StatePortPrompt                     State = "PORT_PROMPT"
	StateAutomaticallyForwardPortPrompt State = "AUTOMATICALLY_FORWARD_PORT_PROMPT"
	StatePasswordPrompt                 State = "PASSWORD_PROMPT"
	StateRunning                        State = "RUNNING"
	StatePortConflict                   State = "PORT_CONFLICT"
)

// stopActions are legal in every state that has a live process behind it.
var stopActions = []Action{ActionShutDown, ActionShutDownNoSave, ActionTerminate}

// stateSpec describes one row of the state table.
type stateSpec struct {
	active  bool
	actions []Action
}

// stateTable is the single source of truth for activity and legal actions.
// Order matters only for AllStates.
var stateTable = []struct {
	state State
	spec  stateSpec
}{
	{StateDefined, stateSpec{false, []Action{ActionSetUp, ActionDelete}}},
	{StateValid, stateSpec{false, []Action{ActionSetUp, ActionDelete}}},
	{StateInvalid, stateSpec{false, []Action{ActionDelete}}},
	{StateIdle, stateSpec{false, []Action{ActionBootUp, ActionDelete}}},
	{StateBroken, stateSpec{false, []Action{ActionRecreate, ActionDelete}}},
	{StateBootingUp, stateSpec{true, stopActions}},
	{StateWorldMenu, stateSpec{true, append([]Action{ActionGoToModMenu, ActionCreateWorld, ActionRunServer}, stopActions...)}},
	{StateModMenu, stateSpec{true, append([]Action{ActionSetLoadedMods}, stopActions...)}},
	{StateChangingModState, stateSpec{true, stopActions}},
	{StateWorldSizePrompt, stateSpec{true, stopActions}},
	{StateWorldDifficultyPrompt, stateSpec{true, stopActions}},
	{StateWorldNamePrompt, stateSpec{true, stopActions}},
	{StateWorldSeedPrompt, stateSpec{true, stopActions}},
	{StateCreatingWorld, stateSpec{true, stopActions}},
	{StateMaxPlayersPrompt, stateSpec{true, stopActions}},
	{StatePortPrompt, stateSpec{true, stopActions}},
	{StateAutomaticallyForwardPortPrompt, stateSpec{true, stopActions}},
	{StatePasswordPrompt, stateSpec{true, stopActions}},
	{StateRunning, stateSpec{true, stopActions}},
	{StatePortConflict, stateSpec{true, stopActions}},
}

var (
	activeStates = make(map[State]bool, len(stateTable))
	applicable   = make(map[State]map[Action]bool, len(stateTable))
)

func init() {
	for _, row := range stateTable {
		activeStates[row.state] = row.spec.active
		set := make(map[Action]bool, len(row.spec.actions))
		for _, a := range row.spec.actions {
			set[a] = true
		}
		applicable[row.state] = set
	}
}

// AllStates returns every known state in table order.
func AllStates() []State {
	out := make([]State, 0, len(stateTable))
	for _, row := range stateTable {
		out = append(out, row.state)
	}
	return out
}

// ParseState converts a string into a known State.
func ParseState(s string) (State, error) {
	st := State(s)
	if _, ok := applicable[st]; !ok {
		return "", fmt.Errorf("unknown state %q", s)
	}
	return st, nil
}

// IsActive reports whether a live subprocess is assumed to exist in this state.
func (s State) IsActive() bool {
	return activeStates[s]
}

// ApplicableActions lists the actions legal in this state, in table order.
func (s State) ApplicableActions() []Action {
	for _, row := range stateTable {
		if row.state == s {
			out := make([]Action, len(row.spec.actions))
			copy(out, row.spec.actions)
			return out
		}
	}
	return nil
}

// IsApplicable is the pure lookup used by every gate that accepts actions.
func IsApplicable(s State, a Action) bool {
	return applicable[s][a]
}

// OneOf reports whether s is any of the given states.
func (s State) OneOf(states ...State) bool {
	for _, other := range states {
		if s == other {
			return true
		}
	}
	return false
}
