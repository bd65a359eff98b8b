// Package embed turns text into vectors through pluggable embedding providers.
package embed

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// ProviderID names an embedding provider.
type ProviderID string

const (
	ProviderOpenAI ProviderID = "openai"
	ProviderGemini ProviderID = "gemini"
	ProviderClaude ProviderID = "claude"
	ProviderOllama ProviderID = "ollama"
	ProviderStatic ProviderID = "static"
)

// String implements fmt.Stringer.
func (id ProviderID) String() string {
	return string(id)
}

// ParseProviderID normalizes a provider name. It does not check that the
// provider is registered.
func ParseProviderID(s string) ProviderID {
	return ProviderID(strings.ToLower(strings.TrimSpace(s)))
}

// ProgressFunc receives (current, total) after every call or sub-batch.
type ProgressFunc func(current, total int)

// Provider generates embeddings for text.
type Provider interface {
	// ID returns the registry key.
	ID() ProviderID

	// Name returns a human readable name.
	Name() string

	// Dimensions returns the vector length this provider produces.
	// Zero for providers without embeddings.
	Dimensions() int

	// SupportsEmbeddings reports whether the provider can embed at all.
	SupportsEmbeddings() bool

	// EmbedOne embeds a single text.
	EmbedOne(ctx context.Context, apiKey, text string) ([]float32, error)

	// EmbedBatch embeds texts in order. A per-item failure leaves nil at
	// that position; a systemic failure aborts and returns the error.
	EmbedBatch(ctx context.Context, apiKey string, texts []string, onProgress ProgressFunc) ([][]float32, error)
}

// Common embedding constants
const (
	// DefaultTimeout bounds one provider HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxFailures opens a provider's circuit breaker.
	DefaultMaxFailures = 5

	// DefaultResetTimeout is how long an open breaker rejects calls.
	DefaultResetTimeout = 30 * time.Second
)

// Options configures the built-in providers.
type Options struct {
	// Model overrides the default model of the selected provider.
	Model string

	// OpenAIBaseURL overrides https://api.openai.com/v1.
	OpenAIBaseURL string

	// GeminiBaseURL overrides the Gemini API endpoint.
	GeminiBaseURL string

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string

	// Timeout bounds a single HTTP request (default: 30s).
	Timeout time.Duration

	// HTTPClient is shared by the HTTP providers. Nil builds one.
	HTTPClient *http.Client

	// Retry is the backoff for retryable provider errors.
	Retry apperrors.RetryConfig

	// Pacing between calls and batches. Zero values use each provider's
	// defaults; a negative value disables the pause.
	BatchDelay time.Duration
	CallDelay  time.Duration
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     10 * time.Second,
			},
		}
	}
	if o.Retry.MaxRetries == 0 && o.Retry.InitialDelay == 0 {
		o.Retry = apperrors.DefaultRetryConfig()
	}
	return o
}

// pace resolves a configured delay against a provider default.
func pace(configured, fallback time.Duration) time.Duration {
	switch {
	case configured < 0:
		return 0
	case configured == 0:
		return fallback
	default:
		return configured
	}
}

// truncate cuts text to at most n runes.
func truncate(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
