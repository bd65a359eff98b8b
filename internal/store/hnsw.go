package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// ANNConfig tunes the approximate nearest-neighbour graph.
type ANNConfig struct {
	M        int // max neighbours per node (default: 16)
	EfSearch int // candidate list size during search (default: 64)
}

// DefaultANNConfig returns the graph defaults.
func DefaultANNConfig() ANNConfig {
	return ANNConfig{M: 16, EfSearch: 64}
}

// ANNResult is one approximate neighbour.
type ANNResult struct {
	ID    string
	Score float32 // cosine similarity mapped from graph distance
}

// ANNIndex is an in-memory HNSW graph over the vectors of one dimension.
// It is built once from a snapshot of records and never mutated; callers
// rebuild it when the store generation moves.
type ANNIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dims       int
	keyMap     []string // internal key -> record id
	generation uint64
	skipped    int
}

// BuildANNIndex builds a graph from records whose vectors have dims
// dimensions. Records of any other length are skipped and counted.
func BuildANNIndex(ctx context.Context, records []Record, dims int, generation uint64, cfg ANNConfig) (*ANNIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dims)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	idx := &ANNIndex{
		graph:      graph,
		dims:       dims,
		keyMap:     make([]string, 0, len(records)),
		generation: generation,
	}

	for i := range records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		r := &records[i]
		if len(r.Vector) != dims {
			idx.skipped++
			continue
		}

		vec := make([]float32, dims)
		copy(vec, r.Vector)
		normalizeVectorInPlace(vec)

		key := uint64(len(idx.keyMap))
		idx.keyMap = append(idx.keyMap, r.ID)
		graph.Add(hnsw.MakeNode(key, vec))
	}

	return idx, nil
}

// Search returns up to k approximate neighbours of query, best first.
func (a *ANNIndex) Search(query []float32, k int) ([]ANNResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(query) != a.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), a.dims)
	}
	if a.graph.Len() == 0 || k <= 0 {
		return []ANNResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	nodes := a.graph.Search(q, k)
	results := make([]ANNResult, 0, len(nodes))
	for _, node := range nodes {
		if node.Key >= uint64(len(a.keyMap)) {
			continue
		}
		distance := a.graph.Distance(q, node.Value)
		results = append(results, ANNResult{
			ID:    a.keyMap[node.Key],
			Score: distanceToScore(distance),
		})
	}
	return results, nil
}

// Dimensions returns the vector length the graph was built for.
func (a *ANNIndex) Dimensions() int {
	return a.dims
}

// Generation returns the store generation the graph was built from.
func (a *ANNIndex) Generation() uint64 {
	return a.generation
}

// Len returns the number of indexed vectors.
func (a *ANNIndex) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.graph.Len()
}

// Skipped returns how many records were left out for having other dimensions.
func (a *ANNIndex) Skipped() int {
	return a.skipped
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore maps cosine distance (0 identical, 2 opposite) back to
// cosine similarity.
func distanceToScore(distance float32) float32 {
	return 1.0 - distance
}
