package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "opensymbolicai-cli"

// Paths holds resolved filesystem paths for CLI data.
type Paths struct {
	ConfigDir  string // ~/.config/opensymbolicai-cli
	Settings   string // ~/.config/opensymbolicai-cli/settings.yaml
	EnvFile    string // ~/.config/opensymbolicai-cli/.env
	LogFile    string // ~/.config/opensymbolicai-cli/logs/cli.log
	CacheDir   string // ~/.cache/opensymbolicai-cli
	ModelCache string // ~/.cache/opensymbolicai-cli/models.db
}

// ResolvePaths computes all standard paths from the home directory.
// If OPENSYMBOLICAI_CLI_HOME is set, config and cache live under it instead.
func ResolvePaths() (Paths, error) {
	var configDir, cacheDir string
	if base := os.Getenv("OPENSYMBOLICAI_CLI_HOME"); base != "" {
		configDir = filepath.Join(base, "config")
		cacheDir = filepath.Join(base, "cache")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		configDir = filepath.Join(home, ".config", appDirName)
		cacheDir = filepath.Join(home, ".cache", appDirName)
	}

	return Paths{
		ConfigDir:  configDir,
		Settings:   filepath.Join(configDir, "settings.yaml"),
		EnvFile:    filepath.Join(configDir, ".env"),
		LogFile:    filepath.Join(configDir, "logs", "cli.log"),
		CacheDir:   cacheDir,
		ModelCache: filepath.Join(cacheDir, "models.db"),
	}, nil
}

// EnsureDirs creates the config, log and cache directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.ConfigDir, filepath.Dir(p.LogFile), p.CacheDir}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// blockedKeys are keys that must never appear in config paths.
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// ParseConfigPath splits a dot-separated settings path into segments.
// Returns an error if any segment is blocked or empty.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if blockedKeys[p] {
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}

// UnsetValueAtPath removes a value at the given path. Returns true if removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	current := root
	for _, key := range path[:len(path)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			return false
		}
		current = m
	}
	last := path[len(path)-1]
	if _, ok := current[last]; !ok {
		return false
	}
	delete(current, last)
	return true
}
