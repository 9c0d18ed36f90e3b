package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderManifest declares which payment providers have webhook
// endpoints and which provider a retry falls back to when a stored
// record carries none.
type ProviderManifest struct {
	DefaultProvider string   `yaml:"default_provider" json:"default_provider"`
	Providers       []string `yaml:"providers" json:"providers"`
}

func DefaultProviderManifest() *ProviderManifest {
	return &ProviderManifest{
		DefaultProvider: "stripe",
		Providers:       []string{"stripe"},
	}
}

// LoadProviderManifest reads a yaml manifest from path. An empty path
// yields the built-in default manifest.
func LoadProviderManifest(path string) (*ProviderManifest, error) {
	if path == "" {
		return DefaultProviderManifest(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider manifest: %w", err)
	}

	var manifest ProviderManifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("parsing provider manifest: %w", err)
	}

	cleaned := make([]string, 0, len(manifest.Providers))
	for _, p := range manifest.Providers {
		if trimmed := strings.TrimSpace(strings.ToLower(p)); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	manifest.Providers = cleaned

	if manifest.DefaultProvider == "" {
		manifest.DefaultProvider = "stripe"
	}
	manifest.DefaultProvider = strings.TrimSpace(strings.ToLower(manifest.DefaultProvider))

	if len(manifest.Providers) == 0 {
		manifest.Providers = []string{manifest.DefaultProvider}
	}

	return &manifest, nil
}
