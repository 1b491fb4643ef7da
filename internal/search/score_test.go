package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestClamp01(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, clamp01(-0.2))
	assert.Equal(t, 1.0, clamp01(1.0000001))
	assert.Equal(t, 0.0, clamp01(math.NaN()))
	assert.Equal(t, 0.4, clamp01(0.4))
}

func TestNormalizeAndSort(t *testing.T) {
	t.Parallel()

	hits := normalizeByMax([]Hit{{ID: "b", Relevance: 2}, {ID: "a", Relevance: 4}, {ID: "c", Relevance: 2}})
	SortHits(hits)
	assert.Equal(t, []Hit{{ID: "a", Relevance: 1}, {ID: "b", Relevance: 0.5}, {ID: "c", Relevance: 0.5}}, hits)

	zero := normalizeByMax([]Hit{{ID: "a", Relevance: 0}})
	assert.Equal(t, 0.0, zero[0].Relevance)

	assert.Len(t, truncate(hits, 2), 2)
	assert.Len(t, truncate(hits, 0), 3)
}
