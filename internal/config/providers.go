package config

import (
	"os"
	"slices"

	"github.com/joho/godotenv"
)

// KnownProviders lists the inference providers the CLI can configure, in
// the order they are offered to the user.
var KnownProviders = []string{"ollama", "openai", "anthropic", "fireworks", "groq"}

// providerKeyEnv maps keyed providers to the variable holding their API key.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"fireworks": "FIREWORKS_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// IsKnownProvider reports whether name is one of KnownProviders.
func IsKnownProvider(name string) bool {
	return slices.Contains(KnownProviders, name)
}

// APIKeyEnv returns the environment variable holding the provider's API key,
// or "" for providers that run without one (ollama).
func APIKeyEnv(provider string) string {
	return providerKeyEnv[provider]
}

// APIKey resolves the key for a provider: an explicit providers.<name>.apiKey
// entry (with ${VAR} expansion) wins over the conventional environment variable.
func (s Settings) APIKey(provider string) string {
	if p, ok := s.Providers[provider]; ok && p.APIKey != "" {
		// An unresolved ${VAR} reference counts as no key.
		if v := expandEnvVars(p.APIKey); !envVarPattern.MatchString(v) {
			return v
		}
	}
	if env := APIKeyEnv(provider); env != "" {
		return os.Getenv(env)
	}
	return ""
}

// BaseURL returns the configured endpoint override for a provider, if any.
func (s Settings) BaseURL(provider string) string {
	return s.Providers[provider].BaseURL
}

// MissingAPIKey returns the name of the unset environment variable when the
// provider requires a key and none is available, or "" otherwise.
func (s Settings) MissingAPIKey(provider string) string {
	env := APIKeyEnv(provider)
	if env == "" {
		return ""
	}
	if s.APIKey(provider) != "" {
		return ""
	}
	return env
}

// LoadEnvFile loads the first existing .env file among the candidates.
// Variables already present in the process environment are not overridden.
// Returns the path that was loaded, or "" when none exists.
func LoadEnvFile(candidates ...string) (string, error) {
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return path, &ConfigError{Message: "failed to load " + path + ": " + err.Error()}
		}
		return path, nil
	}
	return "", nil
}
