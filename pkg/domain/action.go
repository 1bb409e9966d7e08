package domain

import "fmt"

// Action is a requested high-level transition applied to an instance.
type Action string

const (
	ActionSetUp          Action = "SET_UP"
	ActionBootUp         Action = "BOOT_UP"
	ActionGoToModMenu    Action = "GO_TO_MOD_MENU"
	ActionSetLoadedMods  Action = "SET_LOADED_MODS"
	ActionCreateWorld    Action = "CREATE_WORLD"
	ActionRunServer      Action = "RUN_SERVER"
	ActionShutDown       Action = "SHUT_DOWN"
	ActionShutDownNoSave Action = "SHUT_DOWN_NO_SAVE"
	ActionTerminate      Action = "TERMINATE"
	ActionRecreate       Action = "RECREATE"
	ActionDelete         Action = "DELETE"
)

var allActions = []Action{
	ActionSetUp,
	ActionBootUp,
	ActionGoToModMenu,
	ActionSetLoadedMods,
	ActionCreateWorld,
	ActionRunServer,
	ActionShutDown,
	ActionShutDownNoSave,
	ActionTerminate,
	ActionRecreate,
	ActionDelete,
}

// AllActions returns every known action.
func AllActions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// ParseAction converts a string into a known Action.
func ParseAction(s string) (Action, error) {
	for _, a := range allActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Ptr returns a pointer to a copy of the action, for optional fields.
func (a Action) Ptr() *Action {
	return &a
}
