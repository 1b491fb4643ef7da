package search

import (
	"context"
	"fmt"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/embed"
)

// GeneratorFunc builds the embedding generator of a vector index.
type GeneratorFunc func(cfg config.EmbeddingsConfig, dimensions int) (embed.Generator, error)

// Deps carries what Open needs beyond the index configuration.
type Deps struct {
	// Create allows missing index files to be created.
	Create bool
	// Embeddings builds generators for vector indexes.
	Embeddings GeneratorFunc
}

// Open opens the index described by cfg.
func Open(ctx context.Context, cfg config.SearchIndexConfig, deps Deps) (Index, error) {
	switch c := cfg.(type) {
	case *config.SqliteFTSIndexConfig:
		return openSqliteFTS(ctx, c, deps.Create)
	case *config.BleveFTSIndexConfig:
		return openBleveFTS(c, deps.Create)
	case *config.SqliteVectorIndexConfig:
		gen, err := deps.generator(c.Embeddings, c.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", c.ID, err)
		}
		return openSqliteVector(ctx, c, gen, deps.Create)
	case *config.ChromemVectorIndexConfig:
		gen, err := deps.generator(c.Embeddings, c.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", c.ID, err)
		}
		return openChromemVector(c, gen, deps.Create)
	case *config.GraphIndexConfig:
		return openGraphIndex(ctx, c, deps.Create)
	default:
		return nil, fmt.Errorf("unsupported search index type %T", cfg)
	}
}

func (d Deps) generator(cfg config.EmbeddingsConfig, dimensions int) (embed.Generator, error) {
	if d.Embeddings != nil {
		return d.Embeddings(cfg, dimensions)
	}
	return embed.New(cfg, dimensions, embed.Options{})
}
