package store

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/labsearch/internal/content"
)

func TestANNIndex_BuildAndSearch(t *testing.T) {
	// Given: vectors a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	records := []Record{
		{ID: "a", ContentType: content.TypeTask, Vector: []float32{1, 0, 0, 0}},
		{ID: "b", ContentType: content.TypeTask, Vector: []float32{0, 1, 0, 0}},
		{ID: "c", ContentType: content.TypeTask, Vector: []float32{0.9, 0.1, 0, 0}},
	}

	// When: I build the graph and search for [1,0,0,0] with k=2
	idx, err := BuildANNIndex(context.Background(), records, 4, 7, DefaultANNConfig())
	require.NoError(t, err)
	results, err := idx.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: results are ["a", "c"] in that order
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
	assert.Equal(t, uint64(7), idx.Generation())
}

func TestANNIndex_SkipsOtherDimensions(t *testing.T) {
	records := []Record{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{1, 0, 0}},
	}

	idx, err := BuildANNIndex(context.Background(), records, 2, 0, ANNConfig{})
	require.NoError(t, err)

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, idx.Skipped())
	assert.Equal(t, 2, idx.Dimensions())

	_, err = idx.Search([]float32{1, 0, 0}, 1)
	assert.Error(t, err)
}

func TestANNIndex_Empty(t *testing.T) {
	idx, err := BuildANNIndex(context.Background(), nil, 3, 0, ANNConfig{})
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestANNIndex_InvalidDimensions(t *testing.T) {
	_, err := BuildANNIndex(context.Background(), nil, 0, 0, ANNConfig{})
	assert.Error(t, err)
}

func TestANNIndex_RecallOnClusteredData(t *testing.T) {
	// Given: 500 vectors spread on a circle in 8 dims
	var records []Record
	for i := 0; i < 500; i++ {
		angle := float64(i) * 2 * math.Pi / 500
		v := make([]float32, 8)
		v[0] = float32(math.Cos(angle))
		v[1] = float32(math.Sin(angle))
		records = append(records, Record{ID: fmt.Sprintf("r%03d", i), Vector: v})
	}
	idx, err := BuildANNIndex(context.Background(), records, 8, 0, DefaultANNConfig())
	require.NoError(t, err)

	// When: searching with the exact vector of r100
	results, err := idx.Search(records[100].Vector, 10)
	require.NoError(t, err)

	// Then: r100 is in the shortlist
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Contains(t, ids, "r100")
}

func TestANNIndex_CancelledBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildANNIndex(ctx, []Record{{ID: "a", Vector: []float32{1}}}, 1, 0, ANNConfig{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalizeVectorInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestCodec_RoundTripAndCorruption(t *testing.T) {
	v := []float32{1.5, -2, 0, float32(math.Pi)}

	got, err := decodeVector(encodeVector(v), len(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
}
