package embed

import "context"

// ClaudeProvider is registered so the provider can be selected and
// reported, but Anthropic offers no embeddings API. Every embed call fails
// with ErrCodeEmbeddingsUnsupported; it never returns placeholder vectors.
type ClaudeProvider struct{}

// Verify interface implementation at compile time
var _ Provider = ClaudeProvider{}

func (ClaudeProvider) ID() ProviderID           { return ProviderClaude }
func (ClaudeProvider) Name() string             { return "Anthropic Claude" }
func (ClaudeProvider) Dimensions() int          { return 0 }
func (ClaudeProvider) SupportsEmbeddings() bool { return false }

// EmbedOne always fails.
func (ClaudeProvider) EmbedOne(context.Context, string, string) ([]float32, error) {
	return nil, UnsupportedError(ProviderClaude)
}

// EmbedBatch always fails.
func (ClaudeProvider) EmbedBatch(context.Context, string, []string, ProgressFunc) ([][]float32, error) {
	return nil, UnsupportedError(ProviderClaude)
}
