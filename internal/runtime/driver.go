package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/hub"
	"github.com/aretw0/tsw/pkg/instances"
	"github.com/aretw0/tsw/pkg/ports"
)

// Obfuscated replaces sensitive input in INPUT events.
const Obfuscated = "********"

// Driver types into a session and blocks until the instance reaches an expected state.
type Driver struct {
	manager *instances.Manager
	mux     ports.ProcessMultiplexer
	logger  *slog.Logger
}

// NewDriver creates a Driver. A nil logger discards output.
func NewDriver(manager *instances.Manager, mux ports.ProcessMultiplexer, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Driver{manager: manager, mux: mux, logger: logger}
}

// SendInput records an INPUT event, types text followed by Enter and waits
// for one of the expected states.
func (d *Driver) SendInput(ctx context.Context, id, text string, timeout time.Duration, obfuscate bool, expected ...domain.State) (*domain.Instance, error) {
	content := text
	if obfuscate {
		content = Obfuscated
	}
	if strings.ContainsAny(text, "\r\n") {
		return nil, fmt.Errorf("input must be a single line: %q", content)
	}

	if _, err := d.manager.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
		return domain.NewEvent(inst.ID, domain.EventInput, content), nil
	}); err != nil {
		return nil, interrupted(ctx, err)
	}

	session := domain.SessionName(id)
	d.logger.Debug("Sending input", "instance_id", id, "input", content, "expect", expected)
	return d.Await(ctx, id, timeout, func(ctx context.Context) error {
		return d.mux.SendText(ctx, session, text)
	}, expected...)
}

// SendBreak sends an interrupt and waits for one of the expected states.
func (d *Driver) SendBreak(ctx context.Context, id string, timeout time.Duration, expected ...domain.State) (*domain.Instance, error) {
	session := domain.SessionName(id)
	return d.Await(ctx, id, timeout, func(ctx context.Context) error {
		return d.mux.SendInterrupt(ctx, session)
	}, expected...)
}

// Await subscribes to the instance, runs do and waits for one of the expected
// states. Subscribing first guarantees the reaction to do cannot be missed.
func (d *Driver) Await(ctx context.Context, id string, timeout time.Duration, do func(context.Context) error, expected ...domain.State) (*domain.Instance, error) {
	sub := d.manager.Hub().SubscribeTopic(id)
	defer sub.Close()

	if err := do(ctx); err != nil {
		return nil, interrupted(ctx, err)
	}
	return d.wait(ctx, sub, id, timeout, expected)
}

// WaitForState waits for one of the expected states without sending anything.
func (d *Driver) WaitForState(ctx context.Context, id string, timeout time.Duration, expected ...domain.State) (*domain.Instance, error) {
	sub := d.manager.Hub().SubscribeTopic(id)
	defer sub.Close()
	return d.wait(ctx, sub, id, timeout, expected)
}

func (d *Driver) wait(ctx context.Context, sub *hub.Subscription[*domain.Instance], id string, timeout time.Duration, expected []domain.State) (*domain.Instance, error) {
	match := func(inst *domain.Instance) bool {
		return inst.State.OneOf(expected...)
	}
	reload := func(ctx context.Context) (*domain.Instance, error) {
		return d.manager.Get(ctx, id)
	}

	_, err := sub.WaitFor(ctx, timeout, match, reload)
	if errors.Is(err, hub.ErrTimeout) {
		actual := domain.State("UNKNOWN")
		if cur, gerr := d.manager.Get(ctx, id); gerr == nil {
			actual = cur.State
		}
		return nil, &domain.TimeoutError{Actual: actual, Desired: expected, After: timeout}
	}
	if err != nil {
		return nil, interrupted(ctx, err)
	}

	// Snapshots relayed from other processes carry no secrets, so scripts
	// continue with the stored record.
	inst, err := d.manager.Get(ctx, id)
	if err != nil {
		return nil, interrupted(ctx, err)
	}
	return inst, nil
}

// interrupted wraps err when it was caused by ctx being done.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil && !domain.IsInterrupted(err) {
		return &domain.InterruptedError{Err: err}
	}
	return err
}
