package llm

import (
	"fmt"
	"sort"
	"sync"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// Presets is a thread-safe set of named provider configurations with a
// default, plus a cache of the clients built from them.
type Presets struct {
	mu       sync.RWMutex
	entries  map[string]ProviderConfig
	clients  map[string]Client
	fallback string
	opts     []Option
}

// NewPresets creates an empty preset set. opts are passed to every client
// the set constructs.
func NewPresets(opts ...Option) *Presets {
	return &Presets{
		entries: make(map[string]ProviderConfig),
		clients: make(map[string]Client),
		opts:    opts,
	}
}

// Register adds or replaces a preset. The first preset registered becomes
// the default.
func (p *Presets) Register(name string, cfg ProviderConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[name] = cfg
	delete(p.clients, name)
	if p.fallback == "" {
		p.fallback = name
	}
}

// SetDefault selects the default preset.
func (p *Presets) SetDefault(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[name]; !ok {
		return &dferrors.ConfigError{Field: "preset", Message: fmt.Sprintf("unknown preset %q", name)}
	}
	p.fallback = name
	return nil
}

// Get returns a preset by name.
func (p *Presets) Get(name string) (ProviderConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg, ok := p.entries[name]
	return cfg, ok
}

// Default returns the default preset name, or "" when none is registered.
func (p *Presets) Default() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallback
}

// Names returns the registered preset names in sorted order.
func (p *Presets) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of presets.
func (p *Presets) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Resolve picks a provider configuration: a complete caller override wins,
// then the named preset, then the default preset. Override fields that are
// set replace the chosen preset's.
func (p *Presets) Resolve(name string, override ProviderConfig) (ProviderConfig, error) {
	if override.Kind != "" && override.APIKey != "" {
		return override, override.Validate()
	}

	if name == "" {
		name = p.Default()
	}
	if name == "" {
		return ProviderConfig{}, &dferrors.ConfigError{Field: "provider", Message: "no provider configured and no default preset"}
	}
	cfg, ok := p.Get(name)
	if !ok {
		return ProviderConfig{}, &dferrors.ConfigError{Field: "preset", Message: fmt.Sprintf("unknown preset %q", name)}
	}

	if override.Kind != "" && override.Kind != cfg.Kind {
		return ProviderConfig{}, &dferrors.ConfigError{Field: "kind", Message: fmt.Sprintf("override %q conflicts with preset %q (%s) and carries no API key", override.Kind, name, cfg.Kind)}
	}
	if override.Model != "" {
		cfg.Model = override.Model
	}
	if override.BaseURL != "" {
		cfg.BaseURL = override.BaseURL
	}
	if override.Timeout > 0 {
		cfg.Timeout = override.Timeout
	}
	return cfg, cfg.Validate()
}

// Client returns the cached client for a preset, building it on first use.
// The client is built at most once per preset.
func (p *Presets) Client(name string) (Client, error) {
	if name == "" {
		name = p.Default()
	}

	p.mu.RLock()
	c, ok := p.clients[name]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[name]; ok {
		return c, nil
	}
	cfg, ok := p.entries[name]
	if !ok {
		return nil, &dferrors.ConfigError{Field: "preset", Message: fmt.Sprintf("unknown preset %q", name)}
	}
	c, err := New(cfg, p.opts...)
	if err != nil {
		return nil, err
	}
	p.clients[name] = c
	return c, nil
}

// Use registers a prebuilt client under name, for tests and embedding.
func (p *Presets) Use(name string, c Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[name] = ProviderConfig{Kind: c.Kind()}
	p.clients[name] = c
	if p.fallback == "" {
		p.fallback = name
	}
}
