package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/tsw/pkg/domain"
)

// Combine fans every callback out to each of hooks, in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			for _, h := range hooks {
				h.Transition(ctx, e)
			}
		},
		OnActionStart: func(ctx context.Context, e *domain.ActionEvent) {
			for _, h := range hooks {
				h.ActionStarted(ctx, e)
			}
		},
		OnActionFinish: func(ctx context.Context, e *domain.ActionEvent) {
			for _, h := range hooks {
				h.ActionFinished(ctx, e)
			}
		},
		OnOutput: func(ctx context.Context, id string, n int) {
			for _, h := range hooks {
				h.Output(ctx, id, n)
			}
		},
	}
}

// LogHooks returns hooks that write an audit trail of transitions and actions.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "state_transition", "instance_id", e.InstanceID, "from", e.From, "to", e.To)
		},
		OnActionStart: func(ctx context.Context, e *domain.ActionEvent) {
			logger.DebugContext(ctx, "action_start", "instance_id", e.InstanceID, "action", e.Action)
		},
		OnActionFinish: func(ctx context.Context, e *domain.ActionEvent) {
			args := []any{"instance_id", e.InstanceID, "action", e.Action, "outcome", e.Outcome, "duration", e.Duration}
			if e.Err != nil {
				args = append(args, "err", e.Err)
			}
			logger.InfoContext(ctx, "action_finish", args...)
		},
	}
}
