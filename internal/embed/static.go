package embed

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// StaticDimensions is the embedding dimension for the static provider.
const StaticDimensions = 256

// Weights for vector generation
const (
	wordWeight  = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// stopWords are dropped before hashing so they do not dominate short texts.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// StaticProvider generates embeddings with feature hashing: words and
// character trigrams are hashed into a fixed-size vector. It works offline
// and is deterministic, with much weaker semantics than a trained model.
type StaticProvider struct{}

// Verify interface implementation at compile time
var _ Provider = StaticProvider{}

// NewStaticProvider creates the static provider.
func NewStaticProvider() StaticProvider {
	return StaticProvider{}
}

func (StaticProvider) ID() ProviderID           { return ProviderStatic }
func (StaticProvider) Name() string             { return "Static (offline)" }
func (StaticProvider) Dimensions() int          { return StaticDimensions }
func (StaticProvider) SupportsEmbeddings() bool { return true }

// EmbedOne embeds a single text. apiKey is ignored.
func (p StaticProvider) EmbedOne(ctx context.Context, _ string, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

// EmbedBatch embeds every text in one pass. apiKey is ignored.
func (p StaticProvider) EmbedBatch(ctx context.Context, _ string, texts []string, onProgress ProgressFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(text)
	}
	if onProgress != nil && len(texts) > 0 {
		onProgress(len(texts), len(texts))
	}
	return out, nil
}

// vector hashes words and trigrams of text into a unit vector.
// Blank text yields the zero vector.
func (StaticProvider) vector(text string) []float32 {
	vector := make([]float32, StaticDimensions)
	text = strings.TrimSpace(text)
	if text == "" {
		return vector
	}

	for _, word := range words(text) {
		if stopWords[word] {
			continue
		}
		vector[hashToIndex(word, StaticDimensions)] += wordWeight
	}

	for _, ngram := range extractNgrams(compact(text), ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}

	return normalizeVector(vector)
}

// words splits text into lowercase letter/digit runs.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// compact lowercases text and drops everything but letters and digits.
func compact(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-rune sliding windows.
func extractNgrams(text string, n int) []string {
	runes := []rune(text)
	if len(runes) < n {
		return []string{}
	}

	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex maps a string to a vector slot.
func hashToIndex(s string, size int) int {
	return int(xxhash.Sum64String(s) % uint64(size))
}
