package search

import (
	"math"
	"sort"
	"unicode"

	"gonum.org/v1/gonum/blas/gonum"
)

var blas = gonum.Implementation{}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// cosine returns the cosine similarity of a and b, 0 for zero vectors.
func cosine(a, b []float32) float64 {
	n := len(a)
	dot := blas.Sdot(n, a, 1, b, 1)
	na := blas.Snrm2(n, a, 1)
	nb := blas.Snrm2(n, b, 1)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(dot) / (float64(na) * float64(nb))
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// normalizeByMax rescales raw scores so the best hit has relevance 1.
func normalizeByMax(hits []Hit) []Hit {
	var max float64
	for _, h := range hits {
		if h.Relevance > max {
			max = h.Relevance
		}
	}
	for i := range hits {
		if max > 0 {
			hits[i].Relevance = clamp01(hits[i].Relevance / max)
		} else {
			hits[i].Relevance = 0
		}
	}
	return hits
}

// SortHits orders by relevance descending, then id for determinism.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].ID < hits[j].ID
	})
}

func truncate(hits []Hit, limit int) []Hit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
