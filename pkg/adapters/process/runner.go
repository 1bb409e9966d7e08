package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// EnvPrefix prefixes the environment variables hook arguments are passed in.
const EnvPrefix = "TSW_ARG_"

// HookError reports a hook that could not run or exited unsuccessfully.
type HookError struct {
	Phase  string
	Stderr string
	Err    error
}

func (e *HookError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s hook failed: %v: %s", e.Phase, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s hook failed: %v", e.Phase, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Runner executes provisioning hooks. Only hooks registered up front can run.
type Runner struct {
	registry map[string]HookConfig
}

// NewRunner creates a Runner with the given hooks keyed by phase.
func NewRunner(hooks map[string]HookConfig) *Runner {
	r := &Runner{registry: make(map[string]HookConfig, len(hooks))}
	for phase, h := range hooks {
		r.registry[phase] = h
	}
	return r
}

// Has reports whether a hook is registered for phase.
func (r *Runner) Has(phase string) bool {
	_, ok := r.registry[phase]
	return ok
}

// Run executes the hook of phase in dir and returns its trimmed stdout.
// A phase without a hook is a no-op.
//
// Arguments are never passed on the command line; each one becomes a
// TSW_ARG_<KEY> environment variable.
func (r *Runner) Run(ctx context.Context, phase, dir string, args map[string]any) (string, error) {
	hook, ok := r.registry[phase]
	if !ok {
		return "", nil
	}

	cmd := exec.CommandContext(ctx, hook.Command, hook.Args...)
	cmd.Dir = dir

	env := cmd.Environ()
	for k, v := range hook.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, fmt.Sprintf("%s%s=%s", EnvPrefix, strings.ToUpper(k), envValue(v)))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &HookError{Phase: phase, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// envValue formats primitives as is and everything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
