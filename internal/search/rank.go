package search

import (
	"cmp"
	"math"
	"slices"

	"github.com/Aman-CERP/labsearch/internal/store"
)

// Ranking defaults.
const (
	DefaultLimit     = 20
	DefaultThreshold = 0.35
)

// RankOptions bounds a ranking.
type RankOptions struct {
	// Limit caps the hits returned. <= 0 uses DefaultLimit.
	Limit int

	// Threshold drops hits scoring below it.
	Threshold float64
}

// Hit is one ranked candidate.
type Hit struct {
	Record store.Record
	Score  float64
}

// RankStats counts what ranking discarded.
type RankStats struct {
	Candidates          int
	DimensionMismatches int
	BelowThreshold      int
}

// Rank scores candidates against query by cosine similarity, drops those
// below the threshold, and returns the best first. Equal scores order by
// ascending id. Candidates of another dimension are skipped and counted.
// The result is never nil.
func Rank(query []float32, candidates []store.Record, opts RankOptions) ([]Hit, RankStats) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	stats := RankStats{Candidates: len(candidates)}

	hits := make([]Hit, 0, min(len(candidates), opts.Limit))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			stats.DimensionMismatches++
			continue
		}
		score := CosineSimilarity(query, c.Vector)
		if score < opts.Threshold {
			stats.BelowThreshold++
			continue
		}
		hits = append(hits, Hit{Record: c, Score: score})
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.ID, b.Record.ID)
	})

	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, stats
}

// CosineSimilarity computes cosine similarity in float64. Vectors of
// different length, empty vectors and zero-norm vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
