package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hooks are exercised with sh")
	}
}

func TestRunner_Run(t *testing.T) {
	requireShell(t)

	runner := NewRunner(map[string]HookConfig{
		PhaseValidate: {Phase: PhaseValidate, Command: "sh", Args: []string{"-c", "echo $TSW_ARG_MSG $GREETING"}, Environment: map[string]string{"GREETING": "hi"}},
		PhaseInstall:  {Phase: PhaseInstall, Command: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}},
	})

	t.Run("Passes arguments via env vars", func(t *testing.T) {
		out, err := runner.Run(context.Background(), PhaseValidate, "", map[string]any{"msg": "SecretMessage"})
		require.NoError(t, err)
		assert.Equal(t, "SecretMessage hi", out)
	})

	t.Run("Reports stderr of a failing hook", func(t *testing.T) {
		_, err := runner.Run(context.Background(), PhaseInstall, "", nil)
		var hookErr *HookError
		require.ErrorAs(t, err, &hookErr)
		assert.Equal(t, PhaseInstall, hookErr.Phase)
		assert.Equal(t, "oops", hookErr.Stderr)
	})

	t.Run("Missing phase is a no-op", func(t *testing.T) {
		empty := NewRunner(nil)
		out, err := empty.Run(context.Background(), PhaseInstall, "", nil)
		assert.NoError(t, err)
		assert.Empty(t, out)
		assert.False(t, empty.Has(PhaseInstall))
	})
}

func TestEnvValue(t *testing.T) {
	assert.Equal(t, "7777", envValue(7777))
	assert.Equal(t, "", envValue(nil))
	assert.Equal(t, `["a","b"]`, envValue([]string{"a", "b"}))
}

func TestLoadHooks(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing file means no hooks", func(t *testing.T) {
		hooks, err := LoadHooks(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Empty(t, hooks)
	})

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "hooks.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
hooks:
  - phase: install
    command: ./install.sh
    args: ["--quiet"]
    env:
      MIRROR: local
`), 0o644))
		hooks, err := LoadHooks(path)
		require.NoError(t, err)
		require.Contains(t, hooks, PhaseInstall)
		assert.Equal(t, "./install.sh", hooks[PhaseInstall].Command)
		assert.Equal(t, []string{"--quiet"}, hooks[PhaseInstall].Args)
		assert.Equal(t, "local", hooks[PhaseInstall].Environment["MIRROR"])
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "hooks.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"hooks":[{"phase":"validate","command":"true"}]}`), 0o644))
		hooks, err := LoadHooks(path)
		require.NoError(t, err)
		assert.Contains(t, hooks, PhaseValidate)
	})

	t.Run("Unknown phase", func(t *testing.T) {
		_, err := Index([]HookConfig{{Phase: "teardown", Command: "true"}})
		assert.Error(t, err)
	})

	t.Run("Duplicate phase", func(t *testing.T) {
		_, err := Index([]HookConfig{{Phase: PhaseInstall, Command: "a"}, {Phase: PhaseInstall, Command: "b"}})
		assert.Error(t, err)
	})
}
