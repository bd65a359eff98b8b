package embed

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// Gemini API constants
const (
	DefaultGeminiModel = "text-embedding-004"
	GeminiDimensions   = 768
	GeminiMaxChars     = 25000
	GeminiGroupSize    = 10
	GeminiCallDelay    = 50 * time.Millisecond
	GeminiGroupDelay   = 100 * time.Millisecond
)

// GeminiProvider embeds through the Gemini API, one text per call.
type GeminiProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	timeout    time.Duration
	callDelay  time.Duration
	groupDelay time.Duration
	guard      *guard

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// Verify interface implementation at compile time
var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates the Gemini provider.
func NewGeminiProvider(opts Options) *GeminiProvider {
	opts = opts.withDefaults()
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimSpace(opts.GeminiBaseURL),
		model:      model,
		timeout:    opts.Timeout,
		callDelay:  pace(opts.CallDelay, GeminiCallDelay),
		groupDelay: pace(opts.BatchDelay, GeminiGroupDelay),
		guard:      newGuard(ProviderGemini, opts.Retry),
		clients:    make(map[string]*genai.Client),
	}
}

func (p *GeminiProvider) ID() ProviderID           { return ProviderGemini }
func (p *GeminiProvider) Name() string             { return "Google Gemini" }
func (p *GeminiProvider) Dimensions() int          { return GeminiDimensions }
func (p *GeminiProvider) SupportsEmbeddings() bool { return true }

// Model returns the embedding model name.
func (p *GeminiProvider) Model() string {
	return p.model
}

// EmbedOne embeds a single text.
func (p *GeminiProvider) EmbedOne(ctx context.Context, apiKey, text string) ([]float32, error) {
	if apiKey == "" {
		return nil, MissingKeyError(ProviderGemini)
	}
	client, err := p.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return guarded(ctx, p.guard, func() ([]float32, error) {
		return p.embed(ctx, client, text)
	})
}

// EmbedBatch embeds texts sequentially: groups of 10 calls, a short pause
// between calls and a longer one between groups. The API has no batch
// endpoint that fits the quota model, so progress is reported per call.
func (p *GeminiProvider) EmbedBatch(ctx context.Context, apiKey string, texts []string, onProgress ProgressFunc) ([][]float32, error) {
	if apiKey == "" {
		return nil, MissingKeyError(ProviderGemini)
	}
	client, err := p.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i > 0 {
			delay := p.callDelay
			if i%GeminiGroupSize == 0 {
				delay = p.groupDelay
			}
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		vec, err := guarded(ctx, p.guard, func() ([]float32, error) {
			return p.embed(ctx, client, text)
		})
		switch {
		case err != nil && IsSystemic(err):
			return nil, err
		case err != nil:
			logItemFailure(ProviderGemini, i, err)
		default:
			out[i] = vec
		}

		if onProgress != nil {
			onProgress(i+1, len(texts))
		}
	}
	return out, nil
}

func (p *GeminiProvider) embed(ctx context.Context, client *genai.Client, text string) ([]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := client.Models.EmbedContent(reqCtx, p.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: truncate(text, GeminiMaxChars)}}}},
		nil)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, malformed(ProviderGemini, "no embedding values returned", nil)
	}
	return resp.Embeddings[0].Values, nil
}

// classify maps genai errors onto the shared error codes.
func (p *GeminiProvider) classify(ctx context.Context, err error) error {
	var (
		apiErr    genai.APIError
		apiErrPtr *genai.APIError
	)
	switch {
	case errors.As(err, &apiErr):
		return statusError(ProviderGemini, apiErr.Code, apiErr.Message)
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		return statusError(ProviderGemini, apiErrPtr.Code, apiErrPtr.Message)
	default:
		return transportError(ctx, ProviderGemini, err)
	}
}

// client returns a cached genai client for apiKey.
func (p *GeminiProvider) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[apiKey]; ok {
		return c, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, invalidCredentials(ProviderGemini, err)
	}
	p.clients[apiKey] = c
	return c, nil
}
