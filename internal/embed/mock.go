package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

// MockGenerator is a test implementation that generates deterministic
// embeddings. Each word is hashed into a bucket, so texts sharing words have
// a higher cosine similarity than unrelated texts.
type MockGenerator struct {
	dimensions int
	calls      atomic.Int64
	texts      atomic.Int64
}

// NewMockGenerator creates a mock generator producing vectors of the given size.
func NewMockGenerator(dimensions int) *MockGenerator {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockGenerator{dimensions: dimensions}
}

func (m *MockGenerator) Name() string    { return "Mock" }
func (m *MockGenerator) Model() string   { return "mock" }
func (m *MockGenerator) Dimensions() int { return m.dimensions }

// Calls returns how many Embed calls were made.
func (m *MockGenerator) Calls() int { return int(m.calls.Load()) }

// Texts returns how many texts were embedded in total.
func (m *MockGenerator) Texts() int { return int(m.texts.Load()) }

// Embed never fails and honours cancellation.
func (m *MockGenerator) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	m.texts.Add(int64(len(texts)))

	out := make([]Embedding, len(texts))
	for i, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		out[i] = Embedding{Vector: m.vector(text, words), TokenCount: intPtr(len(words))}
	}
	return out, nil
}

func (m *MockGenerator) vector(text string, words []string) []float32 {
	vec := make([]float32, m.dimensions)
	if len(words) == 0 {
		// Use hash bytes so empty and symbol-only input is still non-zero
		hash := sha256.Sum256([]byte(text))
		for j := range vec {
			offset := (j * 4) % (len(hash) - 3)
			val := binary.BigEndian.Uint32(hash[offset : offset+4])
			vec[j] = (float32(val)/float32(1<<32))*2.0 - 1.0
		}
		return normalize(vec)
	}

	for _, w := range words {
		hash := sha256.Sum256([]byte(w))
		bucket := binary.BigEndian.Uint32(hash[:4]) % uint32(m.dimensions)
		vec[bucket] += 1
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
