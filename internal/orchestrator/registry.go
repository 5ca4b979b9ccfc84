// Package orchestrator fans phrases out to AI model backends with bounded
// concurrency, per-model rate limits, retries, and circuit breaking.
package orchestrator

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in the model registry.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderPerplexity = "perplexity"
)

// ModelSpec describes one queryable model backend.
type ModelSpec struct {
	ID       string  `yaml:"id"`
	Provider string  `yaml:"provider"`
	Model    string  `yaml:"model"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`

	Timeout time.Duration `yaml:"timeout"`

	// Cost rates in USD per million tokens.
	InputCostPerMTok  float64 `yaml:"input_cost_per_mtok"`
	OutputCostPerMTok float64 `yaml:"output_cost_per_mtok"`
}

// Cost computes the attempt cost from token counts and the spec's rates.
func (m ModelSpec) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)/1e6)*m.InputCostPerMTok +
		(float64(outputTokens)/1e6)*m.OutputCostPerMTok
}

// Registry is the set of configured model backends.
type Registry struct {
	Models []ModelSpec `yaml:"models"`
}

// LoadRegistry reads the model registry from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: read registry %s", path)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrap(err, "orchestrator: parse registry")
	}
	reg.applyDefaults()
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// DefaultRegistry returns the built-in model set used when no registry file
// is configured.
func DefaultRegistry() *Registry {
	reg := &Registry{Models: []ModelSpec{
		{
			ID:                "claude-sonnet",
			Provider:          ProviderAnthropic,
			Model:             "claude-sonnet-4-5-20250929",
			RPS:               2,
			InputCostPerMTok:  3.00,
			OutputCostPerMTok: 15.00,
		},
		{
			ID:                "gpt-4o",
			Provider:          ProviderOpenAI,
			Model:             "gpt-4o",
			RPS:               2,
			InputCostPerMTok:  2.50,
			OutputCostPerMTok: 10.00,
		},
		{
			ID:                "sonar-pro",
			Provider:          ProviderPerplexity,
			Model:             "sonar-pro",
			RPS:               1,
			InputCostPerMTok:  3.00,
			OutputCostPerMTok: 15.00,
		},
	}}
	reg.applyDefaults()
	return reg
}

func (r *Registry) applyDefaults() {
	for i := range r.Models {
		m := &r.Models[i]
		if m.RPS <= 0 {
			m.RPS = 1
		}
		if m.Burst <= 0 {
			m.Burst = 1
		}
		if m.Timeout <= 0 {
			m.Timeout = 45 * time.Second
		}
		if m.Model == "" {
			m.Model = m.ID
		}
	}
}

// Validate checks registry invariants: non-empty, unique IDs, known providers.
func (r *Registry) Validate() error {
	if len(r.Models) == 0 {
		return eris.New("orchestrator: registry has no models")
	}
	seen := make(map[string]bool, len(r.Models))
	for _, m := range r.Models {
		if m.ID == "" {
			return eris.New("orchestrator: model with empty id")
		}
		if seen[m.ID] {
			return eris.Errorf("orchestrator: duplicate model id %s", m.ID)
		}
		seen[m.ID] = true
		switch m.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderPerplexity:
		default:
			return eris.Errorf("orchestrator: model %s has unknown provider %q", m.ID, m.Provider)
		}
	}
	return nil
}

// Get returns the spec for a model ID.
func (r *Registry) Get(id string) (ModelSpec, bool) {
	for _, m := range r.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// IDs lists the registered model IDs in order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.Models))
	for i, m := range r.Models {
		ids[i] = m.ID
	}
	return ids
}
