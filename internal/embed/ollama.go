package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a general-purpose text embedding model
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaDimensions is reported until the first response reveals the
	// model's real dimension.
	OllamaDimensions = 768

	// OllamaBatchSize is the number of texts per /api/embed request
	OllamaBatchSize = 32

	// OllamaMaxChars keeps inputs inside typical local model context windows
	OllamaMaxChars = 8000
)

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaProvider generates embeddings using a local Ollama server.
// It needs no API key.
type OllamaProvider struct {
	client  *http.Client
	host    string
	model   string
	timeout time.Duration
	guard   *guard

	mu   sync.RWMutex
	dims int
}

// Verify interface implementation at compile time
var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates the Ollama provider. No connection is made
// until the first embed call.
func NewOllamaProvider(opts Options) *OllamaProvider {
	opts = opts.withDefaults()
	host := strings.TrimSpace(opts.OllamaHost)
	if host == "" {
		host = DefaultOllamaHost
	}
	model := opts.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		client:  opts.HTTPClient,
		host:    strings.TrimRight(host, "/"),
		model:   model,
		timeout: opts.Timeout,
		guard:   newGuard(ProviderOllama, opts.Retry),
		dims:    OllamaDimensions,
	}
}

func (e *OllamaProvider) ID() ProviderID           { return ProviderOllama }
func (e *OllamaProvider) Name() string             { return "Ollama" }
func (e *OllamaProvider) SupportsEmbeddings() bool { return true }

// Dimensions returns the embedding dimension
func (e *OllamaProvider) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// Model returns the model identifier
func (e *OllamaProvider) Model() string {
	return e.model
}

// EmbedOne embeds a single text. apiKey is ignored.
func (e *OllamaProvider) EmbedOne(ctx context.Context, _ string, text string) ([]float32, error) {
	vecs, err := guarded(ctx, e.guard, func() ([][]float32, error) {
		return e.doEmbed(ctx, []string{text})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, malformed(ProviderOllama, "empty embedding", nil)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts 32 per request. apiKey is ignored.
func (e *OllamaProvider) EmbedBatch(ctx context.Context, _ string, texts []string, onProgress ProgressFunc) ([][]float32, error) {
	return runBatches(ctx, ProviderOllama, texts, OllamaBatchSize, 0, onProgress,
		func(ctx context.Context, batch []string) ([][]float32, error) {
			return guarded(ctx, e.guard, func() ([][]float32, error) {
				return e.doEmbed(ctx, batch)
			})
		})
}

// Available checks if Ollama is running.
func (e *OllamaProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// doEmbed performs a single /api/embed request.
func (e *OllamaProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t, OllamaMaxChars)
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, transportError(ctx, ProviderOllama, err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("embedding_attempt",
		slog.String("provider", string(ProviderOllama)),
		slog.Int("texts_count", len(texts)),
		slog.Duration("timeout", e.timeout))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, ProviderOllama, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(ProviderOllama, resp.StatusCode, string(respBody))
	}

	var apiResult ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, malformed(ProviderOllama, "cannot decode response", err)
	}
	if len(apiResult.Embeddings) != len(texts) {
		return nil, malformed(ProviderOllama, "vector count does not match input count", nil)
	}

	// Convert float64 to float32 and normalize
	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		if len(emb) == 0 {
			continue
		}
		embedding := make([]float32, len(emb))
		for j, v := range emb {
			embedding[j] = float32(v)
		}
		embeddings[i] = normalizeVector(embedding)
		e.learnDims(len(embedding))
	}
	return embeddings, nil
}

func (e *OllamaProvider) learnDims(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims != n {
		slog.Debug("ollama_dimensions_detected", slog.Int("dims", n), slog.String("model", e.model))
		e.dims = n
	}
}
