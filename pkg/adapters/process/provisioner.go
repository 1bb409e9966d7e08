package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
)

// DefaultPlatforms are the operating systems the dedicated server ships for
// and tmux runs on.
var DefaultPlatforms = []string{"linux", "darwin"}

// Provisioner implements ports.Provisioner with an argv template plus
// optional validate and install hooks.
type Provisioner struct {
	command   []string
	hooks     *Runner
	platforms []string
	goos      string
	logger    *slog.Logger
}

// Option configures the Provisioner.
type Option func(*Provisioner)

// WithHooks registers provisioning hooks keyed by phase.
func WithHooks(hooks map[string]HookConfig) Option {
	return func(p *Provisioner) {
		p.hooks = NewRunner(hooks)
	}
}

// WithPlatforms overrides DefaultPlatforms.
func WithPlatforms(goos ...string) Option {
	return func(p *Provisioner) {
		p.platforms = goos
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// NewProvisioner creates a Provisioner starting servers with command.
// A relative executable like ./TerrariaServer resolves against the instance directory.
func NewProvisioner(command []string, opts ...Option) *Provisioner {
	p := &Provisioner{
		command:   slices.Clone(command),
		hooks:     NewRunner(nil),
		platforms: DefaultPlatforms,
		goos:      runtime.GOOS,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "provisioner")
	return p
}

// Validate rejects instances that can never run here.
func (p *Provisioner) Validate(ctx context.Context, inst *domain.Instance) error {
	if !slices.Contains(p.platforms, p.goos) {
		return &domain.DomainInvalidError{Reason: fmt.Sprintf("unsupported platform %s", p.goos)}
	}
	if len(p.command) == 0 {
		return &domain.DomainInvalidError{Reason: "no server command configured"}
	}
	if inst.MaxPlayers < 1 || inst.MaxPlayers > 255 {
		return &domain.DomainInvalidError{Reason: fmt.Sprintf("max players %d out of range 1-255", inst.MaxPlayers)}
	}
	if inst.Port < 1 || inst.Port > 65535 {
		return &domain.DomainInvalidError{Reason: fmt.Sprintf("port %d out of range", inst.Port)}
	}

	if _, err := p.hooks.Run(ctx, PhaseValidate, "", hookArgs(inst)); err != nil {
		if ctx.Err() != nil {
			return &domain.InterruptedError{Err: ctx.Err()}
		}
		return &domain.DomainInvalidError{Reason: "validate hook rejected the instance", Err: err}
	}
	return nil
}

// Install runs the install hook inside the instance directory.
func (p *Provisioner) Install(ctx context.Context, inst *domain.Instance) error {
	if !p.hooks.Has(PhaseInstall) {
		return nil
	}
	out, err := p.hooks.Run(ctx, PhaseInstall, inst.Directory, hookArgs(inst))
	if err != nil {
		var hookErr *HookError
		if errors.As(err, &hookErr) && ctx.Err() != nil {
			return &domain.InterruptedError{Err: ctx.Err()}
		}
		return fmt.Errorf("failed to install instance %s: %w", inst.ID, err)
	}
	p.logger.Info("Instance installed", "instance_id", inst.ID, "output", out)
	return nil
}

// Command returns the argv that starts the server of inst.
func (p *Provisioner) Command(inst *domain.Instance) ([]string, error) {
	if len(p.command) == 0 {
		return nil, &domain.DomainInvalidError{Reason: "no server command configured"}
	}
	argv := slices.Clone(p.command)
	if strings.HasPrefix(argv[0], "./") && inst.Directory != "" {
		argv[0] = filepath.Join(inst.Directory, argv[0])
	}
	return argv, nil
}

func hookArgs(inst *domain.Instance) map[string]any {
	return map[string]any{
		"instance_id": inst.ID,
		"name":        inst.Name,
		"version":     inst.Version,
		"directory":   inst.Directory,
		"port":        inst.Port,
		"max_players": inst.MaxPlayers,
	}
}
