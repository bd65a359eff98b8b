package embed

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// guard runs provider calls through backoff and a circuit breaker.
// The breaker only counts retryable failures, so one bad key does not
// trip it for the next run.
type guard struct {
	id      ProviderID
	retry   apperrors.RetryConfig
	breaker *apperrors.CircuitBreaker
}

func newGuard(id ProviderID, retry apperrors.RetryConfig) *guard {
	return &guard{
		id:    id,
		retry: retry,
		breaker: apperrors.NewCircuitBreaker(string(id),
			apperrors.WithMaxFailures(DefaultMaxFailures),
			apperrors.WithResetTimeout(DefaultResetTimeout),
			apperrors.WithFailureFilter(apperrors.IsRetryable)),
	}
}

// guarded calls fn with retries inside the breaker.
func guarded[T any](ctx context.Context, g *guard, fn func() (T, error)) (T, error) {
	return apperrors.CircuitExecute(g.breaker, func() (T, error) {
		return apperrors.RetryWithResult(ctx, g.retry, fn)
	})
}

// batchFunc embeds one sub-batch and returns one vector per text.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// runBatches splits texts into sub-batches of size, pausing delay between
// them. A failed sub-batch leaves nil vectors and the loop goes on; a
// systemic failure stops it.
func runBatches(ctx context.Context, id ProviderID, texts []string, size int, delay time.Duration,
	onProgress ProgressFunc, call batchFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	if size <= 0 {
		size = len(texts)
	}

	for start := 0; start < len(texts); start += size {
		if start > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		end := min(start+size, len(texts))

		vecs, err := call(ctx, texts[start:end])
		if err == nil && len(vecs) != end-start {
			err = malformed(id, "vector count does not match input count", nil)
		}
		switch {
		case err != nil && IsSystemic(err):
			return nil, err
		case err != nil:
			slog.Warn("embed_batch_failed",
				slog.String("provider", string(id)),
				slog.Int("start", start),
				slog.Int("size", end-start),
				slog.String("error", err.Error()))
		default:
			for i, v := range vecs {
				if len(v) > 0 {
					out[start+i] = v
				}
			}
		}

		if onProgress != nil {
			onProgress(end, len(texts))
		}
	}
	return out, nil
}

func logItemFailure(id ProviderID, index int, err error) {
	slog.Warn("embed_item_failed",
		slog.String("provider", string(id)),
		slog.Int("index", index),
		slog.String("error", err.Error()))
}
