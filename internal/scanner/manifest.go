package scanner

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest is the optional <stem>.manifest.json file that sits next to an
// agent's source and overrides its declared metadata.
type Manifest struct {
	Name        string
	Description string
	Version     string
}

// LoadManifest reads a manifest file. Fields that are missing or not
// strings are left empty.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	return Manifest{
		Name:        str("name"),
		Description: str("description"),
		Version:     str("version"),
	}, nil
}

// apply overrides the agent's metadata with the manifest's non-empty fields.
func (m Manifest) apply(a *Agent) {
	if m.Name != "" {
		a.Name = m.Name
	}
	if m.Description != "" {
		a.Description = m.Description
	}
	if m.Version != "" {
		a.Version = m.Version
	}
}
