package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// Load reads the settings file and applies environment overrides.
// A missing file yields defaults. A file that cannot be parsed also yields
// defaults, together with a *ConfigError so the caller can report it.
func Load(path string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		applyEnvOverrides(&s)
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, &ConfigError{Message: "failed to read settings: " + err.Error()}
	}

	var parsed Settings
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		applyEnvOverrides(&s)
		return s, &ConfigError{Message: "failed to parse settings: " + err.Error()}
	}

	s = parsed
	applyDefaults(&s)
	applyEnvOverrides(&s)
	return s, nil
}

// Save writes the settings as YAML, creating the parent directory.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// SaveChanges writes the editable fields that differ between prev and next
// into the settings file, leaving everything else on disk untouched.
// Values that only came from environment overrides or flags stay out of
// the file unless the user changed them.
func SaveChanges(path string, prev, next Settings) error {
	raw, err := LoadRaw(path)
	if err != nil {
		return err
	}

	update := func(key string, changed bool, value any, empty bool) {
		switch {
		case !changed:
		case empty:
			UnsetValueAtPath(raw, []string{key})
		default:
			SetValueAtPath(raw, []string{key}, value)
		}
	}
	update("agentsFolder", prev.AgentsFolder != next.AgentsFolder, next.AgentsFolder, next.AgentsFolder == "")
	update("defaultProvider", prev.DefaultProvider != next.DefaultProvider, next.DefaultProvider, next.DefaultProvider == "")
	update("defaultModel", prev.DefaultModel != next.DefaultModel, next.DefaultModel, next.DefaultModel == "")
	update("debugMode", prev.DebugMode != next.DebugMode, next.DebugMode, !next.DebugMode)

	return SaveRaw(path, raw)
}

// LoadRaw reads the settings file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse settings: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to the YAML settings file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(s *Settings) {
	if s.DefaultProvider == "" {
		s.DefaultProvider = defaultProvider
	}
	if s.Runner.Python == "" {
		s.Runner.Python = defaultPython
	}
	if s.Logging.Level == "" {
		s.Logging.Level = defaultLogLevel
	}
}

// applyEnvOverrides reads OPENSYMBOLICAI_* environment variables and overrides settings.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("OPENSYMBOLICAI_AGENTS_FOLDER"); v != "" {
		s.AgentsFolder = v
	}
	if v := os.Getenv("OPENSYMBOLICAI_PROVIDER"); v != "" {
		s.DefaultProvider = strings.ToLower(v)
	}
	if v := os.Getenv("OPENSYMBOLICAI_MODEL"); v != "" {
		s.DefaultModel = v
	}
	if v := os.Getenv("OPENSYMBOLICAI_LOG_LEVEL"); v != "" {
		s.Logging.Level = strings.ToLower(v)
	}
}
