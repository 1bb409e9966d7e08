package ports

import (
	"context"

	"github.com/aretw0/tsw/pkg/domain"
)

// ProcessMultiplexer owns the terminal sessions the server processes run in.
// Failures are reported as *domain.ProcessError.
type ProcessMultiplexer interface {
	// Start launches command in a detached session, appending its output to outputPath.
	Start(ctx context.Context, session string, command []string, outputPath string) error

	// SendText types text followed by Enter.
	SendText(ctx context.Context, session, text string) error

	// SendInterrupt sends Ctrl-C.
	SendInterrupt(ctx context.Context, session string) error

	// HasSession reports whether the session is alive.
	HasSession(ctx context.Context, session string) (bool, error)

	// Kill terminates the session. Killing a missing session is not an error.
	Kill(ctx context.Context, session string) error
}

// SessionProbe is the read-only part of the multiplexer used to cross-check output files.
type SessionProbe interface {
	HasSession(ctx context.Context, session string) (bool, error)
}

// FileStore manages instance directories.
type FileStore interface {
	// Reserve creates a fresh, empty directory for the instance and returns its path.
	Reserve(ctx context.Context, instanceID string) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes a single file; a missing file is not an error.
	Delete(ctx context.Context, path string) error
	// DeleteAll removes a directory tree; a missing directory is not an error.
	DeleteAll(ctx context.Context, path string) error
}

// Provisioner validates and installs the server files of an instance.
type Provisioner interface {
	// Validate returns *domain.DomainInvalidError when the instance can never run here.
	Validate(ctx context.Context, inst *domain.Instance) error
	Install(ctx context.Context, inst *domain.Instance) error
	// Command is the argv that starts the server of inst.
	Command(inst *domain.Instance) ([]string, error)
}

// WorldArchiver persists the world files an instance produced.
type WorldArchiver interface {
	Persist(ctx context.Context, inst *domain.Instance, w *domain.World) error
	// Restore puts the archived world back into the instance directory.
	Restore(ctx context.Context, inst *domain.Instance, w *domain.World) error
}

// Notifier broadcasts changes to external listeners. Calls must not block.
type Notifier interface {
	InstanceChanged(inst *domain.Instance)
	EventRecorded(ev *domain.Event)
}
