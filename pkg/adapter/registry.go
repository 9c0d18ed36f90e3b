package adapter

import (
	"sort"
	"strings"
)

// Registry maps provider keys to their normalizers. It is built once at
// process start and read-only afterwards.
type Registry struct {
	normalizers map[string]Normalizer
}

func NewRegistry() *Registry {
	return &Registry{normalizers: make(map[string]Normalizer)}
}

func (r *Registry) Register(provider string, n Normalizer) {
	key := normalizeKey(provider)
	if key == "" || n == nil {
		return
	}
	r.normalizers[key] = n
}

// Resolve returns the normalizer for provider, or nil when none is
// registered. The empty key never resolves.
func (r *Registry) Resolve(provider string) Normalizer {
	key := normalizeKey(provider)
	if key == "" {
		return nil
	}
	return r.normalizers[key]
}

func (r *Registry) Providers() []string {
	keys := make([]string, 0, len(r.normalizers))
	for key := range r.normalizers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizeKey(provider string) string {
	return strings.TrimSpace(strings.ToLower(provider))
}
