package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/tsw/pkg/domain"
)

// instanceRow is the column layout of the instances table. Collections are
// stored as JSON text.
type instanceRow struct {
	ID                       string         `db:"id"`
	HostID                   string         `db:"host_id"`
	Name                     string         `db:"name"`
	Version                  string         `db:"version"`
	Directory                string         `db:"directory"`
	State                    string         `db:"state"`
	PendingAction            sql.NullString `db:"pending_action"`
	CurrentAction            sql.NullString `db:"current_action"`
	ActionStartTime          sql.NullTime   `db:"action_start_time"`
	Error                    string         `db:"error"`
	LoadedMods               string         `db:"loaded_mods"`
	ModsToEnable             string         `db:"mods_to_enable"`
	PendingOptions           string         `db:"pending_options"`
	Options                  string         `db:"options"`
	NextOutputBytePosition   int64          `db:"next_output_byte_position"`
	MaxPlayers               int            `db:"max_players"`
	Port                     int            `db:"port"`
	AutomaticallyForwardPort bool           `db:"automatically_forward_port"`
	Password                 string         `db:"password"`
	WorldID                  string         `db:"world_id"`
	CreatedAt                time.Time      `db:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at"`
}

func toRow(inst *domain.Instance) (*instanceRow, error) {
	row := &instanceRow{
		ID:                       inst.ID,
		HostID:                   inst.HostID,
		Name:                     inst.Name,
		Version:                  inst.Version,
		Directory:                inst.Directory,
		State:                    string(inst.State),
		Error:                    inst.Error,
		NextOutputBytePosition:   inst.NextOutputBytePosition,
		MaxPlayers:               inst.MaxPlayers,
		Port:                     inst.Port,
		AutomaticallyForwardPort: inst.AutomaticallyForwardPort,
		Password:                 inst.Password,
		WorldID:                  inst.WorldID,
		CreatedAt:                inst.CreatedAt,
		UpdatedAt:                inst.UpdatedAt,
	}
	if inst.PendingAction != nil {
		row.PendingAction = sql.NullString{String: string(*inst.PendingAction), Valid: true}
	}
	if inst.CurrentAction != nil {
		row.CurrentAction = sql.NullString{String: string(*inst.CurrentAction), Valid: true}
	}
	if inst.ActionStartTime != nil {
		row.ActionStartTime = sql.NullTime{Time: *inst.ActionStartTime, Valid: true}
	}

	var err error
	if row.LoadedMods, err = encode(nonNil(inst.LoadedMods)); err != nil {
		return nil, err
	}
	if row.ModsToEnable, err = encode(nonNil(inst.ModsToEnable)); err != nil {
		return nil, err
	}
	if row.PendingOptions, err = encode(nonNilMap(inst.PendingOptions)); err != nil {
		return nil, err
	}
	if row.Options, err = encode(nonNilMap(inst.Options)); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *instanceRow) toInstance() (*domain.Instance, error) {
	inst := &domain.Instance{
		ID:                       r.ID,
		HostID:                   r.HostID,
		Name:                     r.Name,
		Version:                  r.Version,
		Directory:                r.Directory,
		State:                    domain.State(r.State),
		Error:                    r.Error,
		NextOutputBytePosition:   r.NextOutputBytePosition,
		MaxPlayers:               r.MaxPlayers,
		Port:                     r.Port,
		AutomaticallyForwardPort: r.AutomaticallyForwardPort,
		Password:                 r.Password,
		WorldID:                  r.WorldID,
		CreatedAt:                r.CreatedAt.UTC(),
		UpdatedAt:                r.UpdatedAt.UTC(),
	}
	if r.PendingAction.Valid {
		inst.PendingAction = domain.Action(r.PendingAction.String).Ptr()
	}
	if r.CurrentAction.Valid {
		inst.CurrentAction = domain.Action(r.CurrentAction.String).Ptr()
	}
	if r.ActionStartTime.Valid {
		t := r.ActionStartTime.Time.UTC()
		inst.ActionStartTime = &t
	}

	if err := decode(r.LoadedMods, &inst.LoadedMods); err != nil {
		return nil, fmt.Errorf("instance %s: loaded_mods: %w", r.ID, err)
	}
	if err := decode(r.ModsToEnable, &inst.ModsToEnable); err != nil {
		return nil, fmt.Errorf("instance %s: mods_to_enable: %w", r.ID, err)
	}
	if err := decode(r.PendingOptions, &inst.PendingOptions); err != nil {
		return nil, fmt.Errorf("instance %s: pending_options: %w", r.ID, err)
	}
	if err := decode(r.Options, &inst.Options); err != nil {
		return nil, fmt.Errorf("instance %s: options: %w", r.ID, err)
	}
	inst.LoadedMods = nonNil(inst.LoadedMods)
	inst.ModsToEnable = nonNil(inst.ModsToEnable)
	inst.PendingOptions = nonNilMap(inst.PendingOptions)
	inst.Options = nonNilMap(inst.Options)
	return inst, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(b), nil
}

func decode(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[int]string) map[int]string {
	if m == nil {
		return map[int]string{}
	}
	return m
}
