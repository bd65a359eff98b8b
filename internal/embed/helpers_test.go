package embed

import (
	"math"
	"sync"
	"time"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// fastOptions points the HTTP providers at url with no pacing and
// millisecond backoff.
func fastOptions(url string) Options {
	return Options{
		OpenAIBaseURL: url,
		GeminiBaseURL: url,
		OllamaHost:    url,
		Timeout:       2 * time.Second,
		Retry: apperrors.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
			ShouldRetry:  apperrors.IsRetryable,
		},
		BatchDelay: -1,
		CallDelay:  -1,
	}
}

// progressRecorder collects progress callbacks.
type progressRecorder struct {
	mu    sync.Mutex
	calls [][2]int
}

func (p *progressRecorder) fn(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]int{current, total})
}
