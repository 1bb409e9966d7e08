package domain

// TransitionRule maps a recognized output line to a new state.
// A rule fires when the current state is one of Sources and the line starts with Prefix.
type TransitionRule struct {
	Sources []State
	Prefix  string
	Target  State
}

// Matches reports whether the rule applies to the given state and line.
func (r TransitionRule) Matches(s State, line string) bool {
	if !s.OneOf(r.Sources...) {
		return false
	}
	return len(line) >= len(r.Prefix) && line[:len(r.Prefix)] == r.Prefix
}

// TransitionRules is scanned in order; the first match wins.
var TransitionRules = []TransitionRule{
	{
		Sources: []State{StateBootingUp, StateWorldMenu, StateModMenu, StateChangingModState, StateWorldSeedPrompt, StateCreatingWorld},
		Prefix:  "Choose World:",
		Target:  StateWorldMenu,
	},
	{
		Sources: []State{StateWorldMenu, StateModMenu, StateChangingModState},
		Prefix:  "Type a command:",
		Target:  StateModMenu,
	},
	{Sources: []State{StateWorldMenu}, Prefix: "Choose size:", Target: StateWorldSizePrompt},
	{Sources: []State{StateWorldSizePrompt}, Prefix: "Choose difficulty:", Target: StateWorldDifficultyPrompt},
	{Sources: []State{StateWorldDifficultyPrompt}, Prefix: "Enter world name:", Target: StateWorldNamePrompt},
	{Sources: []State{StateWorldNamePrompt}, Prefix: "Enter Seed", Target: StateWorldSeedPrompt},
	{Sources: []State{StateWorldSeedPrompt, StateWorldNamePrompt}, Prefix: "Creating world", Target: StateCreatingWorld},
	{Sources: []State{StateWorldMenu}, Prefix: "Max players", Target: StateMaxPlayersPrompt},
	{Sources: []State{StateMaxPlayersPrompt}, Prefix: "Server port", Target: StatePortPrompt},
	{Sources: []State{StatePortPrompt}, Prefix: "Automatically forward port?", Target: StateAutomaticallyForwardPortPrompt},
	{Sources: []State{StateAutomaticallyForwardPortPrompt}, Prefix: "Server password", Target: StatePasswordPrompt},
	{Sources: []State{StatePasswordPrompt}, Prefix: "Server started", Target: StateRunning},
	{Sources: []State{StatePasswordPrompt}, Prefix: "Tried to run two servers on the same PC", Target: StatePortConflict},
}

// MatchTransition returns the first rule matching the state and line.
func MatchTransition(s State, line string) (TransitionRule, bool) {
	for _, r := range TransitionRules {
		if r.Matches(s, line) {
			return r, true
		}
	}
	return TransitionRule{}, false
}

// optionBearing states present a numbered menu whose options must be confirmed.
var optionBearing = map[State]bool{
	StateWorldMenu:             true,
	StateModMenu:               true,
	StateWorldSizePrompt:       true,
	StateWorldDifficultyPrompt: true,
}

// IsOptionBearing reports whether entering s should promote pending options.
func IsOptionBearing(s State) bool {
	return optionBearing[s]
}
