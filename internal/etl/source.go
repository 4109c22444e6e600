package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"qrstudio/internal/domain"
)

// SourceConfig is the per-type configuration of a row source.
type SourceConfig map[string]any

// String returns the string value of key, or "".
func (c SourceConfig) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// ConfigField describes one input of a source form.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // string | select | textarea | password | file
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	Icon         string        `json:"icon"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Source produces campaign rows from an external system.
type Source interface {
	Spec() SourceSpec

	// Discover reports the columns the source will emit.
	Discover(ctx context.Context, cfg SourceConfig) (*Schema, error)

	// Read streams records. The record channel is closed when the source is
	// exhausted or ctx is done; at most one error is sent.
	Read(ctx context.Context, cfg SourceConfig) (<-chan Record, <-chan error)
}

// ── Registry ───────────────────────────────────────────────

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource is called from init() in each source file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrValidation, typ)
	}
	return s, nil
}

// ListSources returns the registered specs ordered by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ValidateConfig checks that every required field of the spec is present.
func ValidateConfig(spec SourceSpec, cfg SourceConfig) error {
	for _, f := range spec.ConfigFields {
		if !f.Required {
			continue
		}
		if v, ok := cfg[f.Key]; !ok || v == nil || v == "" {
			return fmt.Errorf("%w: %s requires %q", domain.ErrValidation, spec.Type, f.Key)
		}
	}
	return nil
}
