package config

// Settings is the persisted CLI configuration.
type Settings struct {
	AgentsFolder    string                   `yaml:"agentsFolder,omitempty"`
	DefaultProvider string                   `yaml:"defaultProvider,omitempty"` // "ollama" | "openai" | "anthropic" | "fireworks" | "groq"
	DefaultModel    string                   `yaml:"defaultModel,omitempty"`
	DebugMode       bool                     `yaml:"debugMode,omitempty"`
	Providers       map[string]ProviderEntry `yaml:"providers,omitempty"`
	Runner          RunnerConfig             `yaml:"runner,omitempty"`
	Logging         LoggingConfig            `yaml:"logging,omitempty"`
}

// ProviderEntry overrides how a provider is reached.
type ProviderEntry struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"` // may reference ${ENV_VAR}
}

// RunnerConfig controls the agent bridge process.
type RunnerConfig struct {
	Python  string `yaml:"python,omitempty"`
	Timeout string `yaml:"timeout,omitempty"` // Go duration, empty for none
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File  string `yaml:"file,omitempty"`
}
