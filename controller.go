package tsw

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/instances"
	"github.com/aretw0/tsw/pkg/ports"
)

// InstanceSpec describes a new instance. Zero MaxPlayers and Port take the
// domain defaults.
type InstanceSpec struct {
	HostID                   string
	Name                     string
	Version                  string
	MaxPlayers               int
	Port                     int
	AutomaticallyForwardPort bool
	Password                 string
	WorldID                  string
	Mods                     []string
}

// WorldSpec describes a new world.
type WorldSpec struct {
	HostID     string
	Name       string
	Size       string
	Difficulty string
	Seed       string
}

// Controller records definitions and action requests.
type Controller struct {
	manager *instances.Manager
	worlds  ports.WorldStore
	logger  *slog.Logger
}

// ControllerOption configures the Controller.
type ControllerOption func(*Controller)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a Controller. worlds may be nil when worlds are not used.
func NewController(manager *instances.Manager, worlds ports.WorldStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		manager: manager,
		worlds:  worlds,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Define stores a new instance in state DEFINED with SET_UP pending.
func (c *Controller) Define(ctx context.Context, spec InstanceSpec) (*domain.Instance, error) {
	if spec.HostID == "" || spec.Name == "" {
		return nil, fmt.Errorf("%w: host and name are required", ErrInvalidSpec)
	}
	if spec.WorldID != "" {
		if err := c.checkWorld(ctx, spec.WorldID); err != nil {
			return nil, err
		}
	}

	inst := domain.NewInstance(spec.HostID, spec.Name)
	inst.Version = spec.Version
	inst.AutomaticallyForwardPort = spec.AutomaticallyForwardPort
	inst.Password = spec.Password
	inst.WorldID = spec.WorldID
	if spec.MaxPlayers != 0 {
		inst.MaxPlayers = spec.MaxPlayers
	}
	if spec.Port != 0 {
		inst.Port = spec.Port
	}
	for _, mod := range spec.Mods {
		if !slices.Contains(inst.ModsToEnable, mod) {
			inst.ModsToEnable = append(inst.ModsToEnable, mod)
		}
	}

	created, err := c.manager.Create(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("failed to define instance: %w", err)
	}
	c.logger.Info("Instance defined", "instance_id", created.ID, "host_id", created.HostID, "name", created.Name)
	return created, nil
}

// RequestOption adjusts the instance together with the request.
type RequestOption func(*request)

type request struct {
	mods    []string
	setMods bool
	worldID *string
}

// WithMods sets the mods SET_LOADED_MODS should leave enabled.
func WithMods(mods ...string) RequestOption {
	return func(r *request) {
		r.mods = mods
		r.setMods = true
	}
}

// WithWorld assigns the world CREATE_WORLD and RUN_SERVER operate on.
func WithWorld(worldID string) RequestOption {
	return func(r *request) {
		r.worldID = &worldID
	}
}

// Request queues action on the instance. It fails with a
// *domain.PreconditionError when the current state does not allow the action
// and with ErrActionPending when another action is queued and not yet started.
// An action may be queued behind the one currently running.
func (c *Controller) Request(ctx context.Context, id string, action domain.Action, opts ...RequestOption) (*domain.Instance, error) {
	var req request
	for _, opt := range opts {
		opt(&req)
	}
	if req.worldID != nil && *req.worldID != "" {
		if err := c.checkWorld(ctx, *req.worldID); err != nil {
			return nil, err
		}
	}

	inst, err := c.manager.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
		if inst.PendingAction != nil {
			running := inst.CurrentAction != nil && *inst.CurrentAction == *inst.PendingAction
			if !running {
				return nil, fmt.Errorf("%w: %s", ErrActionPending, *inst.PendingAction)
			}
		}
		if !domain.IsApplicable(inst.State, action) {
			return nil, &domain.PreconditionError{State: inst.State, Action: action}
		}
		inst.PendingAction = action.Ptr()
		if req.setMods {
			inst.ModsToEnable = uniq(req.mods)
		}
		if req.worldID != nil {
			inst.WorldID = *req.worldID
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Action requested", "instance_id", id, "action", action, "state", inst.State)
	return inst, nil
}

// DefineWorld stores a world that instances can create and serve.
func (c *Controller) DefineWorld(ctx context.Context, spec WorldSpec) (*domain.World, error) {
	if c.worlds == nil {
		return nil, fmt.Errorf("%w: no world store configured", ErrInvalidSpec)
	}
	if spec.HostID == "" || spec.Name == "" {
		return nil, fmt.Errorf("%w: host and name are required", ErrInvalidSpec)
	}
	if !slices.Contains([]string{domain.WorldSizeSmall, domain.WorldSizeMedium, domain.WorldSizeLarge}, spec.Size) {
		return nil, fmt.Errorf("%w: unknown world size %q", ErrInvalidSpec, spec.Size)
	}
	if !slices.Contains([]string{domain.DifficultyClassic, domain.DifficultyExpert, domain.DifficultyMaster, domain.DifficultyJourney}, spec.Difficulty) {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidSpec, spec.Difficulty)
	}
	w := domain.NewWorld(spec.HostID, spec.Name, spec.Size, spec.Difficulty)
	w.Seed = spec.Seed
	saved, err := c.worlds.SaveWorld(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("failed to define world: %w", err)
	}
	return saved, nil
}

func (c *Controller) checkWorld(ctx context.Context, id string) error {
	if c.worlds == nil {
		return fmt.Errorf("%w: no world store configured", ErrInvalidSpec)
	}
	if _, err := c.worlds.GetWorld(ctx, id); err != nil {
		return fmt.Errorf("world %s: %w", id, err)
	}
	return nil
}

func uniq(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
