package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/instances"
	"github.com/aretw0/tsw/pkg/ports"
)

// Timeouts bounds each kind of wait a script performs.
type Timeouts struct {
	Command     time.Duration `mapstructure:"command"`
	Boot        time.Duration `mapstructure:"boot"`
	ModReload   time.Duration `mapstructure:"mod_reload"`
	WorldCreate time.Duration `mapstructure:"world_create"`
	Shutdown    time.Duration `mapstructure:"shutdown"`
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Command:     30 * time.Second,
		Boot:        2 * time.Minute,
		ModReload:   5 * time.Minute,
		WorldCreate: 10 * time.Minute,
		Shutdown:    2 * time.Minute,
	}
}

// maxModToggles bounds the mod toggling loop.
const maxModToggles = 100

// Engine applies actions to instances by scripting their interactive menu.
type Engine struct {
	manager     *instances.Manager
	worlds      ports.WorldStore
	mux         ports.ProcessMultiplexer
	files       ports.FileStore
	provisioner ports.Provisioner
	archiver    ports.WorldArchiver
	tracker     *Tracker
	driver      *Driver
	timeouts    Timeouts
	logger      *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithWorlds resolves the world assigned to an instance.
func WithWorlds(worlds ports.WorldStore) Option {
	return func(e *Engine) {
		e.worlds = worlds
	}
}

// WithArchiver persists world files after creation and saving shutdowns.
func WithArchiver(archiver ports.WorldArchiver) Option {
	return func(e *Engine) {
		e.archiver = archiver
	}
}

// WithTracker shares a watcher registry instead of creating one.
func WithTracker(tracker *Tracker) Option {
	return func(e *Engine) {
		e.tracker = tracker
	}
}

// WithTimeouts overrides the default timeouts. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(e *Engine) {
		if t.Command > 0 {
			e.timeouts.Command = t.Command
		}
		if t.Boot > 0 {
			e.timeouts.Boot = t.Boot
		}
		if t.ModReload > 0 {
			e.timeouts.ModReload = t.ModReload
		}
		if t.WorldCreate > 0 {
			e.timeouts.WorldCreate = t.WorldCreate
		}
		if t.Shutdown > 0 {
			e.timeouts.Shutdown = t.Shutdown
		}
	}
}

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine with its collaborators.
func NewEngine(manager *instances.Manager, mux ports.ProcessMultiplexer, files ports.FileStore, provisioner ports.Provisioner, opts ...Option) *Engine {
	e := &Engine{
		manager:     manager,
		mux:         mux,
		files:       files,
		provisioner: provisioner,
		timeouts:    DefaultTimeouts(),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = NewTracker(context.Background(), manager, mux, WithTrackerLogger(e.logger))
	}
	e.driver = NewDriver(manager, mux, e.logger.With("component", "driver"))
	return e
}

// Tracker returns the watcher registry.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Driver returns the input driver.
func (e *Engine) Driver() *Driver {
	return e.driver
}

// Apply runs the script of action against inst. It returns the resulting
// instance, or nil when the action removed it.
func (e *Engine) Apply(ctx context.Context, inst *domain.Instance, action domain.Action) (*domain.Instance, error) {
	if !domain.IsApplicable(inst.State, action) {
		return nil, &domain.PreconditionError{State: inst.State, Action: action}
	}

	switch action {
	case domain.ActionSetUp:
		return e.setUp(ctx, inst)
	case domain.ActionBootUp:
		return e.bootUp(ctx, inst)
	case domain.ActionGoToModMenu:
		return e.goToModMenu(ctx, inst)
	case domain.ActionSetLoadedMods:
		return e.setLoadedMods(ctx, inst)
	case domain.ActionCreateWorld:
		return e.createWorld(ctx, inst)
	case domain.ActionRunServer:
		return e.runServer(ctx, inst)
	case domain.ActionShutDown:
		return e.shutDown(ctx, inst, true)
	case domain.ActionShutDownNoSave:
		return e.shutDown(ctx, inst, false)
	case domain.ActionTerminate:
		return e.terminate(ctx, inst)
	case domain.ActionRecreate:
		return e.recreate(ctx, inst)
	case domain.ActionDelete:
		return nil, e.delete(ctx, inst)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// Resume tracks every active instance of the host whose output file still exists.
func (e *Engine) Resume(ctx context.Context, hostID string) error {
	list, err := e.manager.Store().ListByHost(ctx, hostID)
	if err != nil {
		return fmt.Errorf("failed to list instances of host %s: %w", hostID, err)
	}
	for _, inst := range list {
		if !inst.State.IsActive() || inst.Directory == "" {
			continue
		}
		exists, err := e.files.Exists(ctx, inst.OutputPath())
		if err != nil {
			return err
		}
		if !exists {
			e.logger.Warn("Active instance has no output file", "instance_id", inst.ID, "state", inst.State)
			continue
		}
		if err := e.tracker.Track(inst); err != nil {
			return err
		}
		e.logger.Info("Resumed instance", "instance_id", inst.ID, "state", inst.State)
	}
	return nil
}

// set persists a state change made by a script.
func (e *Engine) set(ctx context.Context, id string, fn func(inst *domain.Instance)) (*domain.Instance, error) {
	inst, err := e.manager.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
		fn(inst)
		return nil, nil
	})
	if err != nil {
		return nil, interrupted(ctx, err)
	}
	return inst, nil
}

func (e *Engine) world(ctx context.Context, inst *domain.Instance, action domain.Action) (*domain.World, error) {
	if inst.WorldID == "" {
		return nil, &domain.PreconditionError{State: inst.State, Action: action, Reason: "no world assigned"}
	}
	if e.worlds == nil {
		return nil, fmt.Errorf("no world store configured")
	}
	w, err := e.worlds.GetWorld(ctx, inst.WorldID)
	if errors.Is(err, domain.ErrWorldNotFound) {
		return nil, &domain.PreconditionError{State: inst.State, Action: action, Reason: "world " + inst.WorldID + " does not exist"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load world %s: %w", inst.WorldID, err)
	}
	return w, nil
}
