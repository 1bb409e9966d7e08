package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/hub"
	"github.com/aretw0/tsw/pkg/instances"
)

// storeRetryDelay bounds the pause after a failed lookup or write of pending work.
const storeRetryDelay = 5 * time.Second

// ErrNotStarted is returned by Process when the action could not be marked as
// started. The action stays pending.
var ErrNotStarted = errors.New("runner: action not started")

// Engine applies actions. It is implemented by the execution engine.
type Engine interface {
	// Apply runs the script of action and returns the resulting instance,
	// or nil when the action removed it.
	Apply(ctx context.Context, inst *domain.Instance, action domain.Action) (*domain.Instance, error)
	// Resume restarts output tracking of the active instances of a host.
	Resume(ctx context.Context, hostID string) error
}

// Runner is the dispatch loop of one host.
type Runner struct {
	hostID       string
	manager      *instances.Manager
	engine       Engine
	pollInterval time.Duration
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	stopSource   <-chan struct{}
}

// New creates a Runner. WithHostID, WithManager and WithEngine are required.
func New(opts ...Option) *Runner {
	r := &Runner{
		pollInterval: DefaultPollInterval,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run resumes tracking of the host's active instances, then dispatches pending
// actions until ctx is done or the stop source fires. It returns ctx.Err() on
// cancellation and nil on a requested stop.
func (r *Runner) Run(ctx context.Context) error {
	if r.hostID == "" || r.manager == nil || r.engine == nil {
		return fmt.Errorf("runner requires a host id, a manager and an engine")
	}
	logger := r.logger.With("host_id", r.hostID)

	if err := r.engine.Resume(ctx, r.hostID); err != nil {
		logger.Warn("Failed to resume instances", "err", err)
	}

	// waitCtx also ends when a stop is requested, so idle waits return early.
	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	if r.stopSource != nil {
		go func() {
			select {
			case <-r.stopSource:
				cancelWait()
			case <-waitCtx.Done():
			}
		}()
	}

	sub := r.manager.Hub().Subscribe()
	defer sub.Close()

	logger.Info("Dispatch loop started", "poll_interval", r.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if waitCtx.Err() != nil {
			logger.Info("Dispatch loop stopped")
			return nil
		}

		inst, err := r.manager.Store().FindPendingForHost(ctx, r.hostID)
		if errors.Is(err, domain.ErrInstanceNotFound) {
			r.idle(waitCtx, sub)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("Failed to look up pending actions", "err", err)
			r.pause(waitCtx, min(r.pollInterval, storeRetryDelay))
			continue
		}

		if err := r.Process(ctx, inst); err != nil {
			if !errors.Is(err, ErrNotStarted) {
				return err
			}
			r.pause(waitCtx, min(r.pollInterval, storeRetryDelay))
		}
	}
}

// idle blocks until an instance of the host gets a pending action or the poll interval passes.
func (r *Runner) idle(ctx context.Context, sub *hub.Subscription[*domain.Instance]) {
	_, _ = sub.WaitFor(ctx, r.pollInterval, func(inst *domain.Instance) bool {
		return inst.HostID == r.hostID && inst.PendingAction != nil
	}, nil)
}

func (r *Runner) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process applies the pending action of inst and records the outcome.
// It returns ErrNotStarted when the action could not be marked as started, and
// otherwise an error only when ctx was canceled while the action ran.
func (r *Runner) Process(ctx context.Context, inst *domain.Instance) error {
	if inst.PendingAction == nil {
		return nil
	}
	action := *inst.PendingAction
	logger := r.logger.With("instance_id", inst.ID, "action", action)
	start := time.Now()

	// The same gate is applied when an action is requested, the check here
	// covers records written by other means.
	if !domain.IsApplicable(inst.State, action) {
		r.hooks.ActionStarted(ctx, &domain.ActionEvent{InstanceID: inst.ID, Action: action})
		return r.fail(ctx, inst.ID, action, start, &domain.PreconditionError{State: inst.State, Action: action})
	}

	marked, err := r.manager.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
		now := time.Now().UTC()
		i.CurrentAction = action.Ptr()
		i.ActionStartTime = &now
		i.Error = ""
		return nil, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("Failed to mark action as started", "err", err)
		return fmt.Errorf("%w: %w", ErrNotStarted, err)
	}
	r.hooks.ActionStarted(ctx, &domain.ActionEvent{InstanceID: inst.ID, Action: action})

	logger.Info("Applying action", "state", marked.State)
	result, err := r.engine.Apply(ctx, marked, action)
	if err != nil {
		if ctx.Err() != nil && !domain.IsInterrupted(err) {
			err = &domain.InterruptedError{Err: err}
		}
		return r.fail(ctx, inst.ID, action, start, err)
	}

	if result != nil {
		done, err := r.manager.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
			i.CurrentAction = nil
			i.ActionStartTime = nil
			// A script may queue a follow-up action, which must survive.
			if i.PendingAction != nil && *i.PendingAction == action {
				i.PendingAction = nil
			}
			return nil, nil
		})
		if err != nil {
			logger.Error("Failed to record finished action", "err", err)
		} else {
			logger.Info("Action applied", "from", marked.State, "to", done.State, "duration", time.Since(start))
		}
	} else {
		logger.Info("Action applied, instance removed", "duration", time.Since(start))
	}

	r.hooks.ActionFinished(ctx, &domain.ActionEvent{
		InstanceID: inst.ID,
		Action:     action,
		Duration:   time.Since(start),
		Outcome:    string(OutcomeOK),
	})
	return nil
}

// fail stores the classified failure as one event plus one instance save.
func (r *Runner) fail(ctx context.Context, id string, action domain.Action, start time.Time, cause error) error {
	outcome := Classify(cause)
	msg := Message(cause)
	logger := r.logger.With("instance_id", id, "action", action, "outcome", outcome)

	persistCtx := ctx
	if outcome == OutcomeInterrupted {
		// The failure still has to be written after cancellation.
		persistCtx = context.WithoutCancel(ctx)
	}

	_, err := r.manager.Update(persistCtx, id, func(i *domain.Instance) (*domain.Event, error) {
		state, typ := Resolve(outcome, i.State)
		if state != i.State {
			i.SetState(state)
		}
		i.CurrentAction = nil
		i.ActionStartTime = nil
		i.PendingAction = nil
		i.Error = msg
		return domain.NewEvent(i.ID, typ, msg), nil
	})
	if err != nil {
		logger.Error("Failed to record action failure", "cause", msg, "err", err)
	} else if outcome == OutcomePrecondition {
		logger.Warn("Action rejected", "err", cause)
	} else {
		logger.Error("Action failed", "err", cause)
	}

	r.hooks.ActionFinished(persistCtx, &domain.ActionEvent{
		InstanceID: id,
		Action:     action,
		Duration:   time.Since(start),
		Outcome:    string(outcome),
		Err:        cause,
	})

	if outcome == OutcomeInterrupted {
		return cause
	}
	return nil
}
