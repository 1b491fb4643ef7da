package embed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/kernel-memory/internal/cache"
)

// Store is the embeddings cache contract Cached depends on.
type Store interface {
	Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error)
	Put(ctx context.Context, key cache.Key, entry cache.Entry) error
}

// Cached consults an embeddings cache before calling the wrapped generator.
// Misses are embedded in one batch and written back. Cache failures are
// logged and treated as misses.
type Cached struct {
	inner  Generator
	store  Store
	logger zerolog.Logger
}

// NewCached wraps inner with store.
func NewCached(inner Generator, store Store, logger zerolog.Logger) *Cached {
	return &Cached{inner: inner, store: store, logger: logger}
}

func (c *Cached) Name() string    { return c.inner.Name() }
func (c *Cached) Model() string   { return c.inner.Model() }
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

func (c *Cached) key(text string) cache.Key {
	return cache.NewKey(c.inner.Name(), c.inner.Model(), c.inner.Dimensions(), text)
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))

	// pending maps a missing text to every position it occupies
	pending := make(map[string][]int)
	var misses []string

	for i, text := range texts {
		if positions, ok := pending[text]; ok {
			pending[text] = append(positions, i)
			continue
		}
		entry, hit, err := c.store.Get(ctx, c.key(text))
		if err != nil {
			c.logger.Warn().Err(err).Str("provider", c.inner.Name()).Msg("embeddings cache read failed")
		}
		if hit {
			out[i] = Embedding{Vector: entry.Vector, TokenCount: entry.TokenCount}
			continue
		}
		pending[text] = []int{i}
		misses = append(misses, text)
	}

	if len(misses) == 0 {
		c.logger.Debug().Int("texts", len(texts)).Msg("embeddings cache hit")
		return out, nil
	}

	generated, err := c.inner.Embed(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(generated) != len(misses) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", c.inner.Name(), len(generated), len(misses))
	}

	for i, text := range misses {
		e := generated[i]
		for _, pos := range pending[text] {
			out[pos] = e
		}
		if err := c.store.Put(ctx, c.key(text), cache.Entry{Vector: e.Vector, TokenCount: e.TokenCount}); err != nil {
			c.logger.Warn().Err(err).Str("provider", c.inner.Name()).Msg("embeddings cache write failed")
		}
	}

	c.logger.Debug().
		Int("texts", len(texts)).
		Int("misses", len(misses)).
		Msg("embeddings generated")
	return out, nil
}
