package embed

import (
	"os"
	"strings"

	"github.com/Aman-CERP/labsearch/internal/config"
)

// keyEnvVars lists the environment variables checked per provider, in order.
var keyEnvVars = map[ProviderID][]string{
	ProviderOpenAI: {"OPENAI_API_KEY"},
	ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ProviderClaude: {"ANTHROPIC_API_KEY"},
	ProviderOllama: {""},
	ProviderStatic: {""},
}

// NeedsAPIKey reports whether id requires a key to embed.
func NeedsAPIKey(id ProviderID) bool {
	switch id {
	case ProviderOpenAI, ProviderGemini, ProviderClaude:
		return true
	default:
		return false
	}
}

// ResolveAPIKey returns the key for id: the config value first, then the
// provider's environment variables. Empty when none is set. cfg may be nil.
func ResolveAPIKey(id ProviderID, cfg *config.Config) string {
	if cfg != nil {
		var fromConfig string
		switch id {
		case ProviderOpenAI:
			fromConfig = cfg.Embeddings.OpenAIAPIKey
		case ProviderGemini:
			fromConfig = cfg.Embeddings.GeminiAPIKey
		case ProviderClaude:
			fromConfig = cfg.Embeddings.AnthropicAPIKey
		}
		if v := strings.TrimSpace(fromConfig); v != "" {
			return v
		}
	}

	for _, name := range keyEnvVars[id] {
		if name == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Usable reports whether p can embed with the given key.
func Usable(p Provider, apiKey string) bool {
	if p == nil || !p.SupportsEmbeddings() {
		return false
	}
	return !NeedsAPIKey(p.ID()) || apiKey != ""
}

// Provider readiness as shown by status surfaces.
const (
	ReadinessReady       = "ready"
	ReadinessMissingKey  = "missing key"
	ReadinessUnsupported = "unsupported"
	ReadinessUnknown     = "unknown"
)

// Readiness reports whether id can embed right now.
func Readiness(r *Registry, id ProviderID, apiKey string) string {
	p, err := r.Get(id)
	if err != nil {
		return ReadinessUnknown
	}
	switch {
	case !p.SupportsEmbeddings():
		return ReadinessUnsupported
	case NeedsAPIKey(id) && apiKey == "":
		return ReadinessMissingKey
	default:
		return ReadinessReady
	}
}
