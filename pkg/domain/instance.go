package domain

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxPlayers = 8
	DefaultPort       = 7777

	// OutputFileName is the file the multiplexer redirects process output into.
	OutputFileName = "output.log"
)

// Instance is one managed, interactively driven server process plus its persisted state.
type Instance struct {
	ID        string `json:"id" db:"id"`
	HostID    string `json:"host_id" db:"host_id"`
	Name      string `json:"name" db:"name"`
	Version   string `json:"version" db:"version"`
	Directory string `json:"directory" db:"directory"`

	State           State      `json:"state" db:"state"`
	PendingAction   *Action    `json:"pending_action,omitempty" db:"pending_action"`
	CurrentAction   *Action    `json:"current_action,omitempty" db:"current_action"`
	ActionStartTime *time.Time `json:"action_start_time,omitempty" db:"action_start_time"`
	Error           string     `json:"error,omitempty" db:"error"`

	LoadedMods     []string       `json:"loaded_mods"`
	ModsToEnable   []string       `json:"mods_to_enable"`
	PendingOptions map[int]string `json:"pending_options"`
	Options        map[int]string `json:"options"`

	NextOutputBytePosition int64 `json:"next_output_byte_position" db:"next_output_byte_position"`

	MaxPlayers               int    `json:"max_players" db:"max_players"`
	Port                     int    `json:"port" db:"port"`
	AutomaticallyForwardPort bool   `json:"automatically_forward_port" db:"automatically_forward_port"`
	Password                 string `json:"password,omitempty" db:"password"`
	WorldID                  string `json:"world_id,omitempty" db:"world_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewInstance defines a fresh instance waiting to be set up.
func NewInstance(hostID, name string) *Instance {
	now := time.Now().UTC()
	return &Instance{
		ID:             uuid.NewString(),
		HostID:         hostID,
		Name:           name,
		State:          StateDefined,
		PendingAction:  ActionSetUp.Ptr(),
		LoadedMods:     []string{},
		ModsToEnable:   []string{},
		PendingOptions: map[int]string{},
		Options:        map[int]string{},
		MaxPlayers:     DefaultMaxPlayers,
		Port:           DefaultPort,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	c := *i
	if i.PendingAction != nil {
		c.PendingAction = i.PendingAction.Ptr()
	}
	if i.CurrentAction != nil {
		c.CurrentAction = i.CurrentAction.Ptr()
	}
	if i.ActionStartTime != nil {
		t := *i.ActionStartTime
		c.ActionStartTime = &t
	}
	c.LoadedMods = slices.Clone(i.LoadedMods)
	c.ModsToEnable = slices.Clone(i.ModsToEnable)
	c.PendingOptions = cloneOptions(i.PendingOptions)
	c.Options = cloneOptions(i.Options)
	return &c
}

// Public returns a copy without secrets, for values that leave the process.
func (i *Instance) Public() *Instance {
	out := i.Clone()
	if out != nil {
		out.Password = ""
	}
	return out
}

func cloneOptions(in map[int]string) map[int]string {
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SessionName is the multiplexer session id for this instance.
func (i *Instance) SessionName() string {
	return SessionName(i.ID)
}

// SessionName derives the multiplexer session id from an instance id.
func SessionName(instanceID string) string {
	return "tsw-" + instanceID
}

// OutputPath is the file the process output is redirected into.
func (i *Instance) OutputPath() string {
	return filepath.Join(i.Directory, OutputFileName)
}

// HasMod reports whether name is among the loaded mods.
func (i *Instance) HasMod(name string) bool {
	return slices.Contains(i.LoadedMods, name)
}

// AddMod records a loaded mod once.
func (i *Instance) AddMod(name string) bool {
	if i.HasMod(name) {
		return false
	}
	i.LoadedMods = append(i.LoadedMods, name)
	return true
}

// ClearMods forgets every loaded mod.
func (i *Instance) ClearMods() {
	i.LoadedMods = []string{}
}

// WantsMod reports whether name is in the target set of a mod-toggling run.
func (i *Instance) WantsMod(name string) bool {
	return slices.Contains(i.ModsToEnable, name)
}

// SetState moves to s. Options are promoted when s presents a menu and cleared otherwise.
func (i *Instance) SetState(s State) {
	i.State = s
	if IsOptionBearing(s) && i.PendingOptions != nil {
		i.Options = i.PendingOptions
	} else {
		i.Options = map[int]string{}
	}
	i.PendingOptions = map[int]string{}
}

// OptionID finds the menu option whose label equals label.
func (i *Instance) OptionID(label string) (int, bool) {
	best, found := 0, false
	for id, l := range i.Options {
		if l == label && (!found || id < best) {
			best, found = id, true
		}
	}
	return best, found
}

// IsPending reports whether an action is waiting to be applied.
func (i *Instance) IsPending() bool {
	return i.PendingAction != nil
}
