package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Hook phases run by the Provisioner.
const (
	PhaseValidate = "validate"
	PhaseInstall  = "install"
)

// HookConfig describes an external command run during provisioning.
type HookConfig struct {
	Phase       string            `yaml:"phase" json:"phase" mapstructure:"phase"`
	Command     string            `yaml:"command" json:"command" mapstructure:"command"`
	Args        []string          `yaml:"args" json:"args" mapstructure:"args"`
	Environment map[string]string `yaml:"env" json:"env" mapstructure:"env"`
	Description string            `yaml:"description" json:"description" mapstructure:"description"`
}

// HooksFile is the structure of a hooks file.
type HooksFile struct {
	Hooks []HookConfig `yaml:"hooks" json:"hooks"`
}

// LoadHooks reads a hooks file (YAML or JSON) and returns the hooks by phase.
// A missing file means no hooks.
func LoadHooks(path string) (map[string]HookConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]HookConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read hooks file: %w", err)
	}

	var cfg HooksFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return Index(cfg.Hooks)
}

// Index keys hooks by phase, rejecting unknown phases and duplicates.
func Index(hooks []HookConfig) (map[string]HookConfig, error) {
	out := make(map[string]HookConfig, len(hooks))
	for _, h := range hooks {
		switch h.Phase {
		case PhaseValidate, PhaseInstall:
		default:
			return nil, fmt.Errorf("unknown hook phase %q", h.Phase)
		}
		if h.Command == "" {
			return nil, fmt.Errorf("hook %q has no command", h.Phase)
		}
		if _, dup := out[h.Phase]; dup {
			return nil, fmt.Errorf("hook %q defined twice", h.Phase)
		}
		out[h.Phase] = h
	}
	return out, nil
}
