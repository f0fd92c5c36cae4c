package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds the evaluator's own settings. The operator token is not
// part of this file; it lives in <shell.root>/config (see internal/auth).
type Config struct {
	ServerURL        string
	ShellRoot        string
	WorkDir          string
	PollInterval     time.Duration
	RegistryUsername string
	Pull             bool
}

func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ShellRoot resolves just the shell root directory, for commands that
// never talk to the server and so need no complete config.
func ShellRoot(path string) (string, error) {
	cfg, err := load(path)
	if err != nil {
		return "", err
	}
	return cfg.ShellRoot, nil
}

func load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("poll.interval", 5)
	v.SetDefault("docker.pull", true)

	for key, env := range map[string]string{
		"server.url":        "CRUCIBLE_SERVER_URL",
		"shell.root":        "CRUCIBLE_SHELL_ROOT",
		"work.dir":          "CRUCIBLE_WORK_DIR",
		"registry.username": "CRUCIBLE_REGISTRY_USERNAME",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		ServerURL:        v.GetString("server.url"),
		ShellRoot:        v.GetString("shell.root"),
		WorkDir:          v.GetString("work.dir"),
		PollInterval:     time.Duration(v.GetInt("poll.interval")) * time.Second,
		RegistryUsername: v.GetString("registry.username"),
		Pull:             v.GetBool("docker.pull"),
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.ShellRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		cfg.ShellRoot = filepath.Join(home, ".crucible")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("server.url is required")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	return nil
}
