package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/labsearch/internal/config"
	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

func TestGeminiProvider_EmbedBatchSequential(t *testing.T) {
	// Given: a Gemini-compatible server
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Contains(t, r.URL.Path, DefaultGeminiModel)
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(fastOptions(srv.URL))
	rec := &progressRecorder{}

	// When: embedding three texts
	vecs, err := p.EmbedBatch(context.Background(), "g-key", []string{"a", "b", "c"}, rec.fn)

	// Then: one call per text, progress per call
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[2])
	assert.Equal(t, int32(3), requests.Load())
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, rec.calls)
}

func TestGeminiProvider_InvalidKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(fastOptions(srv.URL))

	_, err := p.EmbedBatch(context.Background(), "bad", []string{"a", "b"}, nil)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidCredentials, apperrors.GetCode(err))
}

func TestGeminiProvider_MissingKey(t *testing.T) {
	_, err := NewGeminiProvider(Options{}).EmbedOne(context.Background(), "", "x")

	assert.Equal(t, apperrors.ErrCodeMissingAPIKey, apperrors.GetCode(err))
}

func TestOllamaProvider_EmbedAndLearnDimensions(t *testing.T) {
	// Given: an Ollama server returning 4-dim vectors
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOllamaModel, req.Model)

		embs := make([][]float64, len(req.Input))
		for i := range embs {
			embs[i] = []float64{3, 4, 0, 0}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Model: req.Model, Embeddings: embs})
	}))
	defer srv.Close()

	p := NewOllamaProvider(fastOptions(srv.URL))
	assert.Equal(t, OllamaDimensions, p.Dimensions())

	// When: embedding without an API key
	vecs, err := p.EmbedBatch(context.Background(), "", []string{"a", "b"}, nil)

	// Then: vectors are normalized and the dimension is learned
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 1.0, vectorMagnitude(vecs[1]), 1e-6)
	assert.Equal(t, 4, p.Dimensions())
}

func TestOllamaProvider_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(fastOptions(url))

	_, err := p.EmbedOne(context.Background(), "", "x")

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.False(t, IsSystemic(err))
	assert.False(t, p.Available(context.Background()))
}

func TestClaudeProvider_Unsupported(t *testing.T) {
	p := ClaudeProvider{}

	assert.False(t, p.SupportsEmbeddings())
	assert.Zero(t, p.Dimensions())

	vec, err := p.EmbedOne(context.Background(), "key", "x")
	assert.Nil(t, vec)
	assert.Equal(t, apperrors.ErrCodeEmbeddingsUnsupported, apperrors.GetCode(err))

	vecs, err := p.EmbedBatch(context.Background(), "key", []string{"x"}, nil)
	assert.Nil(t, vecs)
	assert.True(t, IsSystemic(err))
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	// Deterministic and unit length
	a1, err := p.EmbedOne(ctx, "", "CRISPR knockout screen in HeLa cells")
	require.NoError(t, err)
	a2, err := p.EmbedOne(ctx, "", "CRISPR knockout screen in HeLa cells")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, StaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(a1), 1e-5)

	// Related text scores above unrelated text
	related, err := p.EmbedOne(ctx, "", "knockout screen with CRISPR")
	require.NoError(t, err)
	unrelated, err := p.EmbedOne(ctx, "", "quarterly budget spreadsheet")
	require.NoError(t, err)
	assert.Greater(t, cosineSimilarity(a1, related), cosineSimilarity(a1, unrelated))

	// Blank text is the zero vector
	zero, err := p.EmbedOne(ctx, "", "   ")
	require.NoError(t, err)
	assert.Zero(t, vectorMagnitude(zero))
}

func TestStaticProvider_BatchProgress(t *testing.T) {
	rec := &progressRecorder{}

	vecs, err := NewStaticProvider().EmbedBatch(context.Background(), "", []string{"a", "b"}, rec.fn)

	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, [][2]int{{2, 2}}, rec.calls)
}

// countingProvider counts EmbedOne calls.
type countingProvider struct {
	StaticProvider
	calls atomic.Int32
	fail  bool
}

func (c *countingProvider) EmbedOne(ctx context.Context, key, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, apperrors.NetworkError("down", nil)
	}
	return c.StaticProvider.EmbedOne(ctx, key, text)
}

func TestCachedQueryEmbedder_Hits(t *testing.T) {
	// Given: a cached embedder
	inner := &countingProvider{}
	c := NewCachedQueryEmbedder(inner, 10)
	ctx := context.Background()

	// When: embedding the same query twice and another once
	v1, err := c.Embed(ctx, "", "protein folding")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "", "protein folding")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "", "cell culture")
	require.NoError(t, err)

	// Then: the provider is called once per distinct text
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 2, c.Len())

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestCachedQueryEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{fail: true}
	c := NewCachedQueryEmbedder(inner, 0)

	_, err := c.Embed(context.Background(), "", "q")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "", "q")
	require.Error(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Zero(t, c.Len())
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(ProviderGemini, Options{Model: "custom-model"})

	assert.Equal(t, []ProviderID{ProviderClaude, ProviderGemini, ProviderOllama, ProviderOpenAI, ProviderStatic}, r.IDs())

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, def.ID())
	assert.Equal(t, "custom-model", def.(*GeminiProvider).Model())

	// The model override only applies to the default provider
	openai, err := r.Get(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, openai.(*OpenAIProvider).Model())

	_, err = r.Get("cohere")
	assert.Equal(t, apperrors.ErrCodeProviderUnknown, apperrors.GetCode(err))
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "Static"

	r := RegistryFromConfig(cfg)

	assert.Equal(t, ProviderStatic, r.DefaultID())
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "env-google")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := config.NewConfig()

	// Environment fallback, including the secondary Gemini variable
	assert.Equal(t, "env-openai", ResolveAPIKey(ProviderOpenAI, cfg))
	assert.Equal(t, "env-google", ResolveAPIKey(ProviderGemini, cfg))
	assert.Empty(t, ResolveAPIKey(ProviderClaude, nil))

	// Config wins over environment
	cfg.Embeddings.OpenAIAPIKey = " cfg-openai "
	assert.Equal(t, "cfg-openai", ResolveAPIKey(ProviderOpenAI, cfg))

	// Local providers need no key
	assert.Empty(t, ResolveAPIKey(ProviderOllama, cfg))
	assert.True(t, Usable(NewStaticProvider(), ""))
	assert.False(t, Usable(NewOpenAIProvider(Options{}), ""))
	assert.False(t, Usable(ClaudeProvider{}, "key"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "héł", truncate("héłło", 3))
	assert.Equal(t, "ab", truncate("ab", 3))
	assert.Equal(t, "abc", truncate("abc", 0))
	assert.True(t, strings.HasPrefix("héłło", truncate("héłło", 4)))
}

func TestParseProviderID(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, ParseProviderID(" OpenAI "))
}

func TestReadiness(t *testing.T) {
	reg := NewDefaultRegistry(ProviderOpenAI, Options{})

	assert.Equal(t, ReadinessReady, Readiness(reg, ProviderOpenAI, "sk-test"))
	assert.Equal(t, ReadinessMissingKey, Readiness(reg, ProviderOpenAI, ""))
	assert.Equal(t, ReadinessUnsupported, Readiness(reg, ProviderClaude, "key"))
	assert.Equal(t, ReadinessReady, Readiness(reg, ProviderStatic, ""))
	assert.Equal(t, ReadinessUnknown, Readiness(reg, "cohere", "key"))
}
