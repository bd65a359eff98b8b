package embed

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Aman-CERP/labsearch/internal/config"
	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// Registry holds the known providers keyed by id.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderID]Provider
	def       ProviderID
}

// NewRegistry creates an empty registry whose default is def.
func NewRegistry(def ProviderID) *Registry {
	return &Registry{
		providers: make(map[ProviderID]Provider),
		def:       def,
	}
}

// NewDefaultRegistry registers every built-in provider. opts.Model only
// applies to the default provider; the others keep their default models.
func NewDefaultRegistry(def ProviderID, opts Options) *Registry {
	opts = opts.withDefaults()
	modelFor := func(id ProviderID) Options {
		o := opts
		if id != def {
			o.Model = ""
		}
		return o
	}

	r := NewRegistry(def)
	r.Register(NewOpenAIProvider(modelFor(ProviderOpenAI)))
	r.Register(NewGeminiProvider(modelFor(ProviderGemini)))
	r.Register(ClaudeProvider{})
	r.Register(NewOllamaProvider(modelFor(ProviderOllama)))
	r.Register(NewStaticProvider())
	return r
}

// RegistryFromConfig builds the default registry from configuration.
func RegistryFromConfig(cfg *config.Config) *Registry {
	return NewDefaultRegistry(ParseProviderID(cfg.Embeddings.Provider), Options{
		Model:         cfg.Embeddings.Model,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		Timeout:       cfg.RequestTimeout(),
	})
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns the provider for id.
func (r *Registry) Get(id ProviderID) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeProviderUnknown,
			fmt.Sprintf("unknown embedding provider %q", id), nil).
			WithSuggestion("run 'labsearch providers' to list the available providers")
	}
	return p, nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ProviderID, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DefaultID returns the configured default provider id.
func (r *Registry) DefaultID() ProviderID {
	return r.def
}

// Default returns the configured default provider.
func (r *Registry) Default() (Provider, error) {
	return r.Get(r.def)
}
