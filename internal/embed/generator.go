// Package embed turns text into vectors.
//
// A Generator wraps one provider (Ollama, OpenAI, Azure OpenAI, HuggingFace)
// for a fixed model and dimensionality. Cached layers an embeddings cache
// in front of any Generator.
package embed

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a provider yields vectors of a
	// different length than configured.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnsupported marks provider options this build cannot serve.
	ErrUnsupported = errors.New("unsupported embeddings option")
)

// Embedding is one generated vector. TokenCount is nil when the provider
// does not report usage per input.
type Embedding struct {
	Vector     []float32
	TokenCount *int
}

// Generator produces embeddings for a fixed provider and model.
type Generator interface {
	// Name is the provider name recorded in the embeddings cache ("Ollama").
	Name() string
	Model() string
	Dimensions() int

	// Embed returns one embedding per text, in input order.
	Embed(ctx context.Context, texts []string) ([]Embedding, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, g Generator, text string) (Embedding, error) {
	out, err := g.Embed(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	if len(out) != 1 {
		return Embedding{}, fmt.Errorf("%s returned %d embeddings for 1 text", g.Name(), len(out))
	}
	return out[0], nil
}

// checkBatch verifies count and length of a provider response.
func checkBatch(g Generator, texts []string, out []Embedding) error {
	if len(out) != len(texts) {
		return fmt.Errorf("%s returned %d embeddings for %d texts", g.Name(), len(out), len(texts))
	}
	if g.Dimensions() <= 0 {
		return nil
	}
	for i, e := range out {
		if len(e.Vector) != g.Dimensions() {
			return fmt.Errorf("%w: %s/%s returned %d dimensions for input %d, expected %d",
				ErrDimensionMismatch, g.Name(), g.Model(), len(e.Vector), i, g.Dimensions())
		}
	}
	return nil
}

func intPtr(n int) *int { return &n }
