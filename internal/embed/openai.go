package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// OpenAI API constants
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	OpenAIDimensions     = 1536
	OpenAIBatchSize      = 20
	OpenAIMaxChars       = 30000
	OpenAIBatchDelay     = 100 * time.Millisecond
)

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// OpenAIProvider calls the OpenAI embeddings endpoint.
type OpenAIProvider struct {
	client  *http.Client
	baseURL string
	model   string
	timeout time.Duration
	delay   time.Duration
	guard   *guard
}

// Verify interface implementation at compile time
var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates the OpenAI provider.
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	opts = opts.withDefaults()
	baseURL := strings.TrimSpace(opts.OpenAIBaseURL)
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client:  opts.HTTPClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: opts.Timeout,
		delay:   pace(opts.BatchDelay, OpenAIBatchDelay),
		guard:   newGuard(ProviderOpenAI, opts.Retry),
	}
}

func (p *OpenAIProvider) ID() ProviderID           { return ProviderOpenAI }
func (p *OpenAIProvider) Name() string             { return "OpenAI" }
func (p *OpenAIProvider) Dimensions() int          { return OpenAIDimensions }
func (p *OpenAIProvider) SupportsEmbeddings() bool { return true }

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// EmbedOne embeds a single text.
func (p *OpenAIProvider) EmbedOne(ctx context.Context, apiKey, text string) ([]float32, error) {
	if apiKey == "" {
		return nil, MissingKeyError(ProviderOpenAI)
	}
	vecs, err := guarded(ctx, p.guard, func() ([][]float32, error) {
		return p.request(ctx, apiKey, []string{text})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, malformed(ProviderOpenAI, "empty embedding", nil)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts 20 per request with a pause between requests.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, apiKey string, texts []string, onProgress ProgressFunc) ([][]float32, error) {
	if apiKey == "" {
		return nil, MissingKeyError(ProviderOpenAI)
	}
	return runBatches(ctx, ProviderOpenAI, texts, OpenAIBatchSize, p.delay, onProgress,
		func(ctx context.Context, batch []string) ([][]float32, error) {
			return guarded(ctx, p.guard, func() ([][]float32, error) {
				return p.request(ctx, apiKey, batch)
			})
		})
}

// request performs one POST /embeddings call.
func (p *OpenAIProvider) request(ctx context.Context, apiKey string, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t, OpenAIMaxChars)
	}
	body, err := json.Marshal(openAIEmbedRequest{Model: p.model, Input: input})
	if err != nil {
		return nil, malformed(ProviderOpenAI, "cannot encode request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, transportError(ctx, ProviderOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, ProviderOpenAI, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(ProviderOpenAI, resp.StatusCode, string(respBody))
	}

	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, malformed(ProviderOpenAI, "cannot decode response", err)
	}
	if len(out.Data) != len(texts) {
		return nil, malformed(ProviderOpenAI, "vector count does not match input count", nil)
	}

	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			continue
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
