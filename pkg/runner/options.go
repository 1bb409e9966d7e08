package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/instances"
)

// DefaultPollInterval bounds how long the loop sleeps when no action is pending.
const DefaultPollInterval = 60 * time.Second

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithHostID sets the host whose instances the loop owns. Required.
func WithHostID(id string) Option {
	return func(r *Runner) {
		r.hostID = id
	}
}

// WithManager configures the instance manager used for every read and write. Required.
func WithManager(manager *instances.Manager) Option {
	return func(r *Runner) {
		r.manager = manager
	}
}

// WithEngine configures the engine actions are applied with. Required.
func WithEngine(engine Engine) Option {
	return func(r *Runner) {
		r.engine = engine
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithHooks reports the start and the end of every action.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStopSource sets a channel that asks the loop to stop once the action in
// flight, if any, has finished.
func WithStopSource(ch <-chan struct{}) Option {
	return func(r *Runner) {
		r.stopSource = ch
	}
}
