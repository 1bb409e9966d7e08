// Package tmux runs server processes in detached sessions of a dedicated tmux
// server. Every command targets the server's socket, so the user's own tmux
// server and ~/.tmux.conf are never touched.
package tmux

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
)

// Multiplexer implements ports.ProcessMultiplexer on tmux.
type Multiplexer struct {
	binary     string
	socketPath string
	configFile string
	logger     *slog.Logger
}

// Option configures the Multiplexer.
type Option func(*Multiplexer)

// WithBinary overrides the tmux executable.
func WithBinary(path string) Option {
	return func(m *Multiplexer) {
		m.binary = path
	}
}

// WithConfigFile sets the config file loaded when the server starts.
// Defaults to /dev/null.
func WithConfigFile(path string) Option {
	return func(m *Multiplexer) {
		m.configFile = path
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Multiplexer) {
		m.logger = logger
	}
}

// New returns a Multiplexer bound to the tmux server at socketPath.
func New(socketPath string, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		binary:     "tmux",
		socketPath: socketPath,
		configFile: "/dev/null",
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "tmux", "socket", socketPath)
	return m
}

// Start launches command in a new detached session. Its combined output is
// appended to outputPath, and the file is removed once the command exits, so
// the file exists exactly as long as the process runs.
func (m *Multiplexer) Start(ctx context.Context, session string, command []string, outputPath string) error {
	if len(command) == 0 {
		return &domain.ProcessError{Op: "new-session", Session: session, Err: fmt.Errorf("empty command")}
	}
	quoted := make([]string, len(command))
	for i, arg := range command {
		quoted[i] = shellQuote(arg)
	}
	out := shellQuote(outputPath)
	// The trap keeps sh alive through Ctrl-C or a killed pane so the file is always removed.
	script := fmt.Sprintf("trap : INT HUP TERM; %s 2>&1 | tee -a %s; rm -f %s", strings.Join(quoted, " "), out, out)

	args := []string{"-f", m.configFile, "-S", m.socketPath, "new-session", "-d", "-s", session, "sh", "-c", script}
	if _, err := m.exec(ctx, args...); err != nil {
		return &domain.ProcessError{Op: "new-session", Session: session, Err: err}
	}
	m.logger.Info("Session started", "session", session, "command", command[0])
	return nil
}

// SendText types text literally, then presses Enter.
func (m *Multiplexer) SendText(ctx context.Context, session, text string) error {
	if _, err := m.run(ctx, "send-keys", "-t", session, "-l", "--", text); err != nil {
		return &domain.ProcessError{Op: "send-keys", Session: session, Err: err}
	}
	if _, err := m.run(ctx, "send-keys", "-t", session, "Enter"); err != nil {
		return &domain.ProcessError{Op: "send-keys", Session: session, Err: err}
	}
	return nil
}

// SendInterrupt sends Ctrl-C to the session.
func (m *Multiplexer) SendInterrupt(ctx context.Context, session string) error {
	if _, err := m.run(ctx, "send-keys", "-t", session, "C-c"); err != nil {
		return &domain.ProcessError{Op: "send-keys", Session: session, Err: err}
	}
	return nil
}

// HasSession reports whether the session exists. A missing server means no session.
func (m *Multiplexer) HasSession(ctx context.Context, session string) (bool, error) {
	out, err := m.run(ctx, "has-session", "-t", session)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if isGone(out) {
		return false, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, &domain.ProcessError{Op: "has-session", Session: session, Err: err}
}

// Kill terminates the session. A session that is already gone is not an error.
func (m *Multiplexer) Kill(ctx context.Context, session string) error {
	out, err := m.run(ctx, "kill-session", "-t", session)
	if err != nil && !isGone(out) {
		return &domain.ProcessError{Op: "kill-session", Session: session, Err: err}
	}
	m.logger.Info("Session killed", "session", session)
	return nil
}

// KillServer stops the tmux server and every session on it.
func (m *Multiplexer) KillServer(ctx context.Context) error {
	out, err := m.run(ctx, "kill-server")
	if err != nil && !isGone(out) && !strings.Contains(out, "server exited unexpectedly") {
		return fmt.Errorf("tmux kill-server: %w", err)
	}
	return nil
}

func (m *Multiplexer) run(ctx context.Context, args ...string) (string, error) {
	return m.exec(ctx, append([]string{"-S", m.socketPath}, args...)...)
}

func (m *Multiplexer) exec(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, m.binary, args...)
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		m.logger.Debug("tmux command failed", "args", args, "output", out, "err", err)
		if out != "" {
			return out, fmt.Errorf("%w (%s)", err, out)
		}
		return out, err
	}
	return out, nil
}

// isGone matches the messages tmux prints for a missing session or server.
func isGone(out string) bool {
	return strings.Contains(out, "can't find session") ||
		strings.Contains(out, "no server running") ||
		strings.Contains(out, "error connecting to")
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
