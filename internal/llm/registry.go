package llm

import (
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

// ProviderError is returned when a provider call fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.)
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MissingKeyError is returned by keyed providers when no API key is set.
type MissingKeyError struct {
	Provider string
	EnvVar   string
}

func (e *MissingKeyError) Error() string {
	return e.EnvVar + " not set"
}

// Registry maps provider names to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	log     *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		clients: make(map[string]Client),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Debug().Str("provider", name).Msg("registered provider")
}

// Get returns the client for a provider.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown provider: %s", name)
}

// Providers returns the registered provider names: known providers in
// their display order, then any others alphabetically.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for _, p := range config.KnownProviders {
		if _, ok := r.clients[p]; ok {
			names = append(names, p)
		}
	}
	var extra []string
	for n := range r.clients {
		if !slices.Contains(config.KnownProviders, n) {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// NewRegistryFromSettings registers a client for every known provider using
// the keys and endpoint overrides in s. Keys are read once; rebuild the
// registry after the settings or environment change.
func NewRegistryFromSettings(s config.Settings, hc *http.Client, log *logging.Logger) *Registry {
	if hc == nil {
		hc = NewHTTPClient(log)
	}
	reg := NewRegistry(log)
	for _, name := range config.KnownProviders {
		switch name {
		case "ollama":
			reg.Register(name, NewOllamaClient(s.BaseURL(name), hc))
		case "anthropic":
			reg.Register(name, NewAnthropicClient(s.APIKey(name), s.BaseURL(name), hc))
		default:
			preset, ok := openAICompatPresets[name]
			if !ok {
				continue
			}
			preset.APIKey = s.APIKey(name)
			if u := s.BaseURL(name); u != "" {
				preset.BaseURL = u
			}
			reg.Register(name, NewOpenAICompatClient(preset, hc))
		}
	}
	return reg
}
