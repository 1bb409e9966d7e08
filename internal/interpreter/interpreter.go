package interpreter

import (
	"bytes"
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

const (
	// DefaultSettle bounds how long a session probe waits for the multiplexer
	// to agree with a file event.
	DefaultSettle = 500 * time.Millisecond

	probeInterval = 100 * time.Millisecond
)

// Interpreter turns the output stream of one instance into state changes.
// It implements watcher.Consumer; all callbacks arrive on the watcher goroutine.
type Interpreter struct {
	ctx        context.Context
	instanceID string
	session    string
	manager    *instances.Manager
	sessions   ports.SessionProbe
	settle     time.Duration
	hooks      domain.LifecycleHooks
	logger     *slog.Logger

	line    []byte
	text    bytes.Buffer
	effects []effect
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithSettle sets the window a session probe may retry before reporting a mismatch.
func WithSettle(d time.Duration) Option {
	return func(p *Interpreter) {
		p.settle = d
	}
}

// WithHooks reports output volume.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Interpreter) {
		p.hooks = hooks
	}
}

// WithLogger configures a logger for the Interpreter.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Interpreter) {
		p.logger = logger
	}
}

// New creates an interpreter for the instance. ctx bounds every store call
// and session probe made on its behalf.
func New(ctx context.Context, instanceID string, manager *instances.Manager, sessions ports.SessionProbe, opts ...Option) *Interpreter {
	p := &Interpreter{
		ctx:        ctx,
		instanceID: instanceID,
		session:    domain.SessionName(instanceID),
		manager:    manager,
		sessions:   sessions,
		settle:     DefaultSettle,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("instance_id", instanceID)
	return p
}

// OnFileCreated checks that the new output file belongs to a live session.
func (p *Interpreter) OnFileCreated() {
	p.reset()
	alive, err := p.probe(true)

	p.update(p.ctxFor(err), func(inst *domain.Instance) (*domain.Event, error) {
		if err != nil {
			return p.broken(inst, err), nil
		}
		if !alive {
			return p.broken(inst, fmt.Errorf("output file appeared but session %s is not running", p.session)), nil
		}
		inst.SetState(domain.StateBootingUp)
		inst.ClearMods()
		inst.NextOutputBytePosition = 0
		return domain.NewEvent(inst.ID, domain.EventApplicationStart, "Server process started"), nil
	})
}

// OnFileDeleted checks that the session ended together with its output file.
func (p *Interpreter) OnFileDeleted() {
	p.reset()
	alive, err := p.probe(false)

	p.update(p.ctxFor(err), func(inst *domain.Instance) (*domain.Event, error) {
		if err != nil {
			return p.broken(inst, err), nil
		}
		if alive {
			return p.broken(inst, fmt.Errorf("output file disappeared but session %s is still running", p.session)), nil
		}
		inst.SetState(domain.StateIdle)
		inst.ClearMods()
		return domain.NewEvent(inst.ID, domain.EventApplicationEnd, "Server process ended"), nil
	})
}

// OnReadStarted begins a new pass. Partial lines carry over between passes.
func (p *Interpreter) OnReadStarted() {
	p.text.Reset()
}

// OnCharacter accumulates one byte of output.
func (p *Interpreter) OnCharacter(b byte, _ int64) {
	p.text.WriteByte(b)

	switch b {
	case '\r':
		return
	case '\n':
		p.endLine()
		return
	}

	if b == ' ' && len(p.line) == 0 {
		return
	}
	p.line = append(p.line, b)

	// Prompts are not newline terminated, so rules are checked as soon as the
	// line is exactly as long as a prefix.
	rules, ok := rulesByLength[len(p.line)]
	if !ok {
		return
	}
	var candidates []domain.TransitionRule
	for _, r := range rules {
		if string(p.line) == r.Prefix {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) > 0 {
		p.transition(candidates)
	}
}

// OnReadFinished persists the pass as one OUTPUT event and advances the resume offset.
func (p *Interpreter) OnReadFinished(end int64) {
	if p.text.Len() == 0 && len(p.effects) == 0 {
		return
	}
	text := p.text.String()

	ok := p.update(p.ctx, func(inst *domain.Instance) (*domain.Event, error) {
		p.applyEffects(inst)
		if end > inst.NextOutputBytePosition {
			inst.NextOutputBytePosition = end
		}
		if text == "" {
			return nil, nil
		}
		return domain.NewEvent(inst.ID, domain.EventOutput, domain.RedactAddresses(text)), nil
	})
	if ok {
		p.effects = nil
		p.hooks.Output(p.ctx, p.instanceID, len(text))
	}
	p.text.Reset()
}

func (p *Interpreter) transition(candidates []domain.TransitionRule) {
	fired := false
	ok := p.update(p.ctx, func(inst *domain.Instance) (*domain.Event, error) {
		changed := p.applyEffects(inst)
		for _, r := range candidates {
			if !inst.State.OneOf(r.Sources...) {
				continue
			}
			p.logger.Debug("Recognized transition", "from", inst.State, "to", r.Target, "prefix", r.Prefix)
			inst.SetState(r.Target)
			fired = true
			return nil, nil
		}
		if !changed {
			return nil, instances.ErrNoChange
		}
		return nil, nil
	})
	if ok {
		p.effects = nil
		if fired {
			// Whatever the server prints after a prompt belongs to the next screen.
			p.endLine()
		}
	}
}

func (p *Interpreter) endLine() {
	if e, ok := parseLine(string(p.line)); ok {
		p.effects = append(p.effects, e)
	}
	p.line = p.line[:0]
}

// applyEffects replays parsed lines onto inst. Menu text is not parsed while
// the server runs, since player chat can look like anything.
func (p *Interpreter) applyEffects(inst *domain.Instance) bool {
	if len(p.effects) == 0 || inst.State == domain.StateRunning {
		return false
	}
	for _, e := range p.effects {
		switch e.kind {
		case effectClearMods:
			inst.ClearMods()
		case effectAddMod:
			inst.AddMod(e.value)
		case effectOption:
			if inst.PendingOptions == nil {
				inst.PendingOptions = map[int]string{}
			}
			if prev, ok := inst.PendingOptions[e.id]; ok && prev != e.value {
				p.logger.Warn("Option relabeled", "option", e.id, "old", prev, "new", e.value)
			}
			inst.PendingOptions[e.id] = e.value
		}
	}
	return true
}

func (p *Interpreter) reset() {
	p.line = p.line[:0]
	p.text.Reset()
	p.effects = nil
}

// probe asks the multiplexer whether the session is alive, retrying within the
// settle window until the answer equals want.
func (p *Interpreter) probe(want bool) (bool, error) {
	deadline := time.Now().Add(p.settle)
	for {
		alive, err := p.sessions.HasSession(p.ctx, p.session)
		if err != nil {
			if ctxErr := p.ctx.Err(); ctxErr != nil {
				return false, &domain.InterruptedError{Err: ctxErr}
			}
			return false, fmt.Errorf("failed to probe session %s: %w", p.session, err)
		}
		if alive == want || !time.Now().Before(deadline) {
			return alive, nil
		}
		select {
		case <-p.ctx.Done():
			return alive, &domain.InterruptedError{Err: p.ctx.Err()}
		case <-time.After(probeInterval):
		}
	}
}

// broken marks inst BROKEN and returns the event describing why.
func (p *Interpreter) broken(inst *domain.Instance, err error) *domain.Event {
	p.logger.Error("Output file and session disagree", "err", err)
	inst.SetState(domain.StateBroken)
	inst.ClearMods()
	inst.Error = err.Error()
	typ := domain.EventError
	if domain.IsInterrupted(err) {
		typ = domain.EventInterrupted
	}
	return domain.NewEvent(inst.ID, typ, err.Error())
}

// ctxFor keeps the BROKEN record writable after an interruption.
func (p *Interpreter) ctxFor(err error) context.Context {
	if domain.IsInterrupted(err) {
		return context.WithoutCancel(p.ctx)
	}
	return p.ctx
}

func (p *Interpreter) update(ctx context.Context, fn instances.Mutation) bool {
	_, err := p.manager.Update(ctx, p.instanceID, fn)
	if err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			p.logger.Debug("Dropping output for unknown instance")
		} else {
			p.logger.Warn("Failed to update instance from output", "err", err)
		}
		return false
	}
	return true
}
