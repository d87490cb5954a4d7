// Package config loads and persists the CLI settings and resolves the
// filesystem locations the application uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	defaultProvider = "ollama"
	defaultPython   = "python3"
	defaultLogLevel = "info"
)

// Defaults returns Settings with sensible defaults applied.
func Defaults() Settings {
	return Settings{
		DefaultProvider: defaultProvider,
		Runner: RunnerConfig{
			Python: defaultPython,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// AgentsDir returns the agents folder with a leading ~ expanded.
// Empty means no folder has been configured.
func (s Settings) AgentsDir() string {
	return ExpandHome(s.AgentsFolder)
}

// RunTimeout returns the per-query timeout, or zero for none.
func (s Settings) RunTimeout() time.Duration {
	if s.Runner.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(s.Runner.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Configured reports whether both a provider and a model have been chosen.
func (s Settings) Configured() bool {
	return s.DefaultProvider != "" && s.DefaultModel != ""
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
