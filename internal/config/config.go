// Package config loads tsw settings from tsw.yaml, TSW_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/aretw0/tsw/internal/interpreter"
)

const (
	// FileName is the config file looked up in the working directory and
	// in the user config directory.
	FileName = "tsw"
	// EnvPrefix prefixes environment overrides, e.g. TSW_REDIS_ADDR.
	EnvPrefix = "TSW"
)

// Config is the decoded configuration.
type Config struct {
	Host       string `mapstructure:"host"`
	DataDir    string `mapstructure:"data_dir"`
	Database   string `mapstructure:"database"`
	ArchiveDir string `mapstructure:"archive_dir"`

	Log       LogConfig       `mapstructure:"log"`
	Tmux      TmuxConfig      `mapstructure:"tmux"`
	Server    ServerConfig    `mapstructure:"server"`
	Provision ProvisionConfig `mapstructure:"provision"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redact    RedactConfig    `mapstructure:"redact"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TmuxConfig struct {
	Socket string `mapstructure:"socket"`
	Binary string `mapstructure:"binary"`
}

type ServerConfig struct {
	// Command starts the server; a leading "./" is relative to the instance directory.
	Command []string `mapstructure:"command"`
}

type ProvisionConfig struct {
	Hooks     string   `mapstructure:"hooks"`
	Platforms []string `mapstructure:"platforms"`
}

type TimeoutsConfig struct {
	Command     time.Duration `mapstructure:"command"`
	Boot        time.Duration `mapstructure:"boot"`
	ModReload   time.Duration `mapstructure:"mod_reload"`
	WorldCreate time.Duration `mapstructure:"world_create"`
	Shutdown    time.Duration `mapstructure:"shutdown"`
	ProbeSettle time.Duration `mapstructure:"probe_settle"`
}

type DispatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// RedisConfig enables the cross-host relay, the notifier and the distributed
// lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type MetricsConfig struct {
	// Addr is the listen address of the ops HTTP server; empty disables it.
	Addr string `mapstructure:"addr"`
}

type RedactConfig struct {
	// Patterns are extra regular expressions masked in stored events.
	Patterns []string `mapstructure:"patterns"`
}

// SecretsConfig holds base64 encoded AES-256 keys for server passwords.
type SecretsConfig struct {
	Key          string   `mapstructure:"key"`
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	v.SetDefault("host", host)
	v.SetDefault("data_dir", "data")
	v.SetDefault("database", "")
	v.SetDefault("archive_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tmux.socket", "")
	v.SetDefault("tmux.binary", "tmux")
	v.SetDefault("server.command", []string{"./start-tModLoaderServer.sh"})
	v.SetDefault("provision.hooks", "")
	v.SetDefault("provision.platforms", []string{"linux", "darwin"})
	v.SetDefault("timeouts.command", 30*time.Second)
	v.SetDefault("timeouts.boot", 2*time.Minute)
	v.SetDefault("timeouts.mod_reload", 5*time.Minute)
	v.SetDefault("timeouts.world_create", 10*time.Minute)
	v.SetDefault("timeouts.shutdown", 2*time.Minute)
	v.SetDefault("timeouts.probe_settle", interpreter.DefaultSettle)
	v.SetDefault("dispatch.poll_interval", time.Minute)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "tsw:")
	v.SetDefault("redis.lock_ttl", time.Minute)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("redact.patterns", []string{})
	v.SetDefault("secrets.key", "")
	v.SetDefault("secrets.fallback_keys", []string{})
}

// Load reads the configuration into v and decodes it. An explicit path must
// exist; otherwise tsw.yaml is optional.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "tsw"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.DataDir == "" && c.Database == "" {
		errs = append(errs, errors.New("data_dir or database is required"))
	}
	if len(c.Server.Command) == 0 {
		errs = append(errs, errors.New("server.command is required"))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.command":       c.Timeouts.Command,
		"timeouts.boot":          c.Timeouts.Boot,
		"timeouts.mod_reload":    c.Timeouts.ModReload,
		"timeouts.world_create":  c.Timeouts.WorldCreate,
		"timeouts.shutdown":      c.Timeouts.Shutdown,
		"timeouts.probe_settle":  c.Timeouts.ProbeSettle,
		"dispatch.poll_interval": c.Dispatch.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("redis.lock_ttl must be positive, got %s", c.Redis.LockTTL))
	}
	if _, _, err := c.Secrets.Keys(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DatabasePath is the SQLite file, defaulting to tsw.db under the data dir.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, "tsw.db")
}

// InstancesDir is the root of the per-instance directories.
func (c *Config) InstancesDir() string {
	return filepath.Join(c.DataDir, "instances")
}

// ArchiveRoot is the root under which world files are persisted, in a
// worlds/ subdirectory. It defaults to the data dir.
func (c *Config) ArchiveRoot() string {
	if c.ArchiveDir != "" {
		return c.ArchiveDir
	}
	return c.DataDir
}

// SocketPath is the tmux socket, defaulting to tmux.sock under the data dir.
func (c *Config) SocketPath() string {
	if c.Tmux.Socket != "" {
		return c.Tmux.Socket
	}
	return filepath.Join(c.DataDir, "tmux.sock")
}

// Keys decodes the encryption keys. It returns a nil active key when
// encryption is not configured.
func (s SecretsConfig) Keys() ([]byte, [][]byte, error) {
	if s.Key == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, errors.New("secrets.fallback_keys requires secrets.key")
		}
		return nil, nil, nil
	}
	active, err := decodeKey("secrets.key", s.Key)
	if err != nil {
		return nil, nil, err
	}
	fallback := make([][]byte, 0, len(s.FallbackKeys))
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(fmt.Sprintf("secrets.fallback_keys[%d]", i), k)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(name, s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", name, len(key))
	}
	return key, nil
}
