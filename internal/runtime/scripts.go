package runtime

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/aretw0/tsw/pkg/domain"
)

var modOptionPattern = regexp.MustCompile(`^(.+) \((enabled|disabled)\)$`)

func (e *Engine) setUp(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	if inst.State == domain.StateDefined {
		if err := e.provisioner.Validate(ctx, inst); err != nil {
			return nil, err
		}
		dir, err := e.files.Reserve(ctx, inst.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve directory: %w", err)
		}
		inst, err = e.set(ctx, inst.ID, func(i *domain.Instance) {
			i.Directory = dir
			i.SetState(domain.StateValid)
		})
		if err != nil {
			return nil, err
		}
		e.logger.Info("Instance validated", "instance_id", inst.ID, "directory", dir)
	}

	if err := e.provisioner.Install(ctx, inst); err != nil {
		return nil, err
	}
	return e.set(ctx, inst.ID, func(i *domain.Instance) {
		i.SetState(domain.StateIdle)
	})
}

func (e *Engine) bootUp(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	path := inst.OutputPath()
	exists, err := e.files.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	e.tracker.Untrack(inst.ID)
	if exists {
		if err := e.files.Delete(ctx, path); err != nil {
			return nil, fmt.Errorf("failed to clear stale output: %w", err)
		}
	}

	inst, err = e.set(ctx, inst.ID, func(i *domain.Instance) {
		i.NextOutputBytePosition = 0
		i.ClearMods()
	})
	if err != nil {
		return nil, err
	}
	e.restoreWorld(ctx, inst)
	if err := e.tracker.Track(inst); err != nil {
		return nil, err
	}

	command, err := e.provisioner.Command(inst)
	if err != nil {
		return nil, err
	}
	return e.driver.Await(ctx, inst.ID, e.timeouts.Boot, func(ctx context.Context) error {
		return e.mux.Start(ctx, inst.SessionName(), command, path)
	}, domain.StateWorldMenu)
}

// restoreWorld copies an archived world into a fresh instance directory so
// it shows up in the world menu.
func (e *Engine) restoreWorld(ctx context.Context, inst *domain.Instance) {
	if e.archiver == nil || e.worlds == nil || inst.WorldID == "" {
		return
	}
	world, err := e.worlds.GetWorld(ctx, inst.WorldID)
	if err != nil || !world.Created {
		return
	}
	if err := e.archiver.Restore(ctx, inst, world); err != nil {
		e.logger.Warn("Failed to restore world", "instance_id", inst.ID, "world", world.Name, "err", err)
	}
}

func (e *Engine) goToModMenu(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	return e.driver.SendInput(ctx, inst.ID, "m", e.timeouts.Command, false, domain.StateModMenu)
}

func (e *Engine) setLoadedMods(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	for attempt := 0; ; attempt++ {
		id, ok := nextModToggle(inst)
		if !ok {
			break
		}
		if attempt >= maxModToggles {
			return nil, fmt.Errorf("mods still disagree with the requested set after %d toggles", maxModToggles)
		}

		if _, err := e.set(ctx, inst.ID, func(i *domain.Instance) {
			i.SetState(domain.StateChangingModState)
		}); err != nil {
			return nil, err
		}
		var err error
		inst, err = e.driver.SendInput(ctx, inst.ID, strconv.Itoa(id), e.timeouts.Command, false, domain.StateModMenu)
		if err != nil {
			return nil, err
		}
	}

	inst, err := e.driver.SendInput(ctx, inst.ID, "r", e.timeouts.ModReload, false, domain.StateWorldMenu)
	if err != nil {
		return nil, err
	}
	if len(inst.LoadedMods) != len(inst.ModsToEnable) {
		return nil, fmt.Errorf("expected %d loaded mods, got %d: %v", len(inst.ModsToEnable), len(inst.LoadedMods), inst.LoadedMods)
	}
	return inst, nil
}

// nextModToggle finds the lowest mod option whose enabled flag disagrees with ModsToEnable.
func nextModToggle(inst *domain.Instance) (int, bool) {
	ids := make([]int, 0, len(inst.Options))
	for id := range inst.Options {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		m := modOptionPattern.FindStringSubmatch(inst.Options[id])
		if m == nil {
			continue
		}
		enabled := m[2] == "enabled"
		if enabled != inst.WantsMod(m[1]) {
			return id, true
		}
	}
	return 0, false
}

func (e *Engine) createWorld(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	world, err := e.world(ctx, inst, domain.ActionCreateWorld)
	if err != nil {
		return nil, err
	}
	if world.Created {
		return nil, &domain.PreconditionError{State: inst.State, Action: domain.ActionCreateWorld, Reason: "world " + world.Name + " already exists"}
	}

	inst, err = e.driver.SendInput(ctx, inst.ID, "n", e.timeouts.Command, false, domain.StateWorldSizePrompt)
	if err != nil {
		return nil, err
	}
	inst, err = e.choose(ctx, inst, string(world.Size), domain.StateWorldDifficultyPrompt)
	if err != nil {
		return nil, err
	}
	inst, err = e.choose(ctx, inst, string(world.Difficulty), domain.StateWorldNamePrompt)
	if err != nil {
		return nil, err
	}
	// Older servers create the world right after the name prompt.
	inst, err = e.driver.SendInput(ctx, inst.ID, world.Name, e.timeouts.WorldCreate, false, domain.StateWorldSeedPrompt, domain.StateWorldMenu)
	if err != nil {
		return nil, err
	}
	if inst.State == domain.StateWorldSeedPrompt {
		inst, err = e.driver.SendInput(ctx, inst.ID, world.Seed, e.timeouts.WorldCreate, false, domain.StateWorldMenu)
		if err != nil {
			return nil, err
		}
	}

	if e.archiver != nil {
		if err := e.archiver.Persist(ctx, inst, world); err != nil {
			return nil, fmt.Errorf("failed to archive world %s: %w", world.Name, err)
		}
	}
	world.Created = true
	if _, err := e.worlds.SaveWorld(ctx, world); err != nil {
		return nil, fmt.Errorf("failed to save world %s: %w", world.Name, err)
	}
	e.logger.Info("World created", "instance_id", inst.ID, "world", world.Name)
	return inst, nil
}

// choose selects the menu option labelled label and waits for next.
func (e *Engine) choose(ctx context.Context, inst *domain.Instance, label string, next domain.State) (*domain.Instance, error) {
	id, ok := inst.OptionID(label)
	if !ok {
		return nil, fmt.Errorf("option %q is not offered in %s", label, inst.State)
	}
	return e.driver.SendInput(ctx, inst.ID, strconv.Itoa(id), e.timeouts.Command, false, next)
}

func (e *Engine) runServer(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	world, err := e.world(ctx, inst, domain.ActionRunServer)
	if err != nil {
		return nil, err
	}
	if !world.Created {
		return nil, &domain.PreconditionError{State: inst.State, Action: domain.ActionRunServer, Reason: "world " + world.Name + " has not been created"}
	}

	inst, err = e.choose(ctx, inst, world.Name, domain.StateMaxPlayersPrompt)
	if err != nil {
		return nil, err
	}
	inst, err = e.driver.SendInput(ctx, inst.ID, strconv.Itoa(inst.MaxPlayers), e.timeouts.Command, false, domain.StatePortPrompt)
	if err != nil {
		return nil, err
	}
	inst, err = e.driver.SendInput(ctx, inst.ID, strconv.Itoa(inst.Port), e.timeouts.Command, false, domain.StateAutomaticallyForwardPortPrompt)
	if err != nil {
		return nil, err
	}
	forward := "n"
	if inst.AutomaticallyForwardPort {
		forward = "y"
	}
	inst, err = e.driver.SendInput(ctx, inst.ID, forward, e.timeouts.Command, false, domain.StatePasswordPrompt)
	if err != nil {
		return nil, err
	}
	inst, err = e.driver.SendInput(ctx, inst.ID, inst.Password, e.timeouts.Boot, true, domain.StateRunning, domain.StatePortConflict)
	if err != nil {
		return nil, err
	}

	if inst.State == domain.StatePortConflict {
		port := inst.Port
		e.logger.Warn("Port already in use, queueing shutdown", "instance_id", inst.ID, "port", port)
		return e.manager.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
			msg := fmt.Sprintf("port %d is already in use", port)
			i.PendingAction = domain.ActionShutDown.Ptr()
			i.Error = msg
			return domain.NewEvent(i.ID, domain.EventPortConflict, msg), nil
		})
	}
	return inst, nil
}

func (e *Engine) shutDown(ctx context.Context, inst *domain.Instance, save bool) (*domain.Instance, error) {
	if !e.tracker.StopReading(inst.ID) {
		if err := e.reconcile(ctx, inst); err != nil {
			return nil, err
		}
		e.tracker.StopReading(inst.ID)
	}

	command := "exit-nosave"
	if save {
		command = "exit"
	}
	result, err := e.driver.SendInput(ctx, inst.ID, command, e.timeouts.Shutdown, false, domain.StateIdle)
	if err != nil {
		return nil, err
	}
	e.tracker.Untrack(inst.ID)

	if save && e.archiver != nil && result.WorldID != "" {
		world, err := e.world(ctx, result, domain.ActionShutDown)
		if err != nil {
			return nil, err
		}
		if err := e.archiver.Persist(ctx, result, world); err != nil {
			return nil, fmt.Errorf("failed to archive world %s: %w", world.Name, err)
		}
	}
	return result, nil
}

func (e *Engine) terminate(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	session := inst.SessionName()
	path := inst.OutputPath()

	exists, err := e.files.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		// Nothing left to observe, so the end of the process is recorded here.
		e.tracker.Untrack(inst.ID)
		if err := e.mux.Kill(ctx, session); err != nil {
			return nil, err
		}
		return e.manager.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
			i.SetState(domain.StateIdle)
			i.ClearMods()
			return domain.NewEvent(i.ID, domain.EventApplicationEnd, "Server process terminated"), nil
		})
	}

	if err := e.reconcile(ctx, inst); err != nil {
		return nil, err
	}
	e.tracker.StopReading(inst.ID)

	result, err := e.driver.Await(ctx, inst.ID, e.timeouts.Shutdown, func(ctx context.Context) error {
		if err := e.mux.Kill(ctx, session); err != nil {
			return err
		}
		return e.files.Delete(ctx, path)
	}, domain.StateIdle)
	if err != nil {
		return nil, err
	}
	e.tracker.Untrack(inst.ID)
	return result, nil
}

// reconcile starts tracking an instance whose watcher went missing, so the
// end of its process can still be observed.
func (e *Engine) reconcile(ctx context.Context, inst *domain.Instance) error {
	if _, ok := e.tracker.Lookup(inst.ID); ok {
		return nil
	}
	e.logger.Warn("Instance was not tracked, resuming watcher", "instance_id", inst.ID, "state", inst.State)
	return e.tracker.Track(inst)
}

func (e *Engine) recreate(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	if err := e.mux.Kill(ctx, inst.SessionName()); err != nil {
		return nil, err
	}
	e.tracker.Untrack(inst.ID)

	if inst.Directory != "" {
		exists, err := e.files.Exists(ctx, inst.Directory)
		if err != nil {
			return nil, err
		}
		if exists {
			if err := e.files.DeleteAll(ctx, inst.Directory); err != nil {
				return nil, fmt.Errorf("failed to delete directory: %w", err)
			}
		}
	}

	return e.set(ctx, inst.ID, func(i *domain.Instance) {
		i.SetState(domain.StateDefined)
		i.Directory = ""
		i.ClearMods()
		i.NextOutputBytePosition = 0
		i.Error = ""
		i.PendingAction = domain.ActionSetUp.Ptr()
	})
}

func (e *Engine) delete(ctx context.Context, inst *domain.Instance) error {
	e.tracker.Untrack(inst.ID)
	if err := e.mux.Kill(ctx, inst.SessionName()); err != nil {
		return err
	}
	if inst.Directory != "" {
		if err := e.files.DeleteAll(ctx, inst.Directory); err != nil {
			e.logger.Warn("Failed to delete instance directory", "instance_id", inst.ID, "directory", inst.Directory, "err", err)
		}
	}
	if err := e.manager.Delete(ctx, inst.ID); err != nil {
		return interrupted(ctx, err)
	}
	e.logger.Info("Instance deleted", "instance_id", inst.ID)
	return nil
}
