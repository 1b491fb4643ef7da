package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/embed"
)

// Test Plan for Open:
// - Every index type opens with its configured id, type and required flag
// - Vector indexes get their generator from Deps.Embeddings
// - Generator errors are reported with the index id
// - create=false on missing files fails

func mockEmbeddings(cfg config.EmbeddingsConfig, dims int) (embed.Generator, error) {
	return embed.NewMockGenerator(dims), nil
}

func TestOpen_AllTypes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ollama := &config.OllamaEmbeddingsConfig{Model: "m", BaseURL: config.DefaultOllamaBaseURL}
	configs := []config.SearchIndexConfig{
		&config.SqliteFTSIndexConfig{SearchIndexBase: config.SearchIndexBase{ID: "fts", Required: true}, Path: filepath.Join(dir, "fts.db")},
		&config.BleveFTSIndexConfig{SearchIndexBase: config.SearchIndexBase{ID: "bleve"}, Path: filepath.Join(dir, "bleve")},
		&config.SqliteVectorIndexConfig{SearchIndexBase: config.SearchIndexBase{ID: "vec"}, Path: filepath.Join(dir, "vec.db"), Dimensions: 8, Embeddings: ollama},
		&config.ChromemVectorIndexConfig{SearchIndexBase: config.SearchIndexBase{ID: "chromem"}, Path: filepath.Join(dir, "chromem"), Dimensions: 8, Embeddings: ollama},
		&config.GraphIndexConfig{SearchIndexBase: config.SearchIndexBase{ID: "graph"}, Path: filepath.Join(dir, "graph.db")},
	}

	for _, cfg := range configs {
		idx, err := Open(context.Background(), cfg, Deps{Create: true, Embeddings: mockEmbeddings})
		require.NoError(t, err, cfg.TypeName())

		assert.Equal(t, cfg.IndexID(), idx.ID())
		assert.Equal(t, cfg.TypeName(), idx.Type())
		assert.Equal(t, cfg.IsRequired(), idx.Required())

		indexAll(t, idx, doc("a", "factory #smoke test"))
		hits, err := idx.Search(context.Background(), Query{Text: "smoke"})
		require.NoError(t, err, cfg.TypeName())
		assert.Equal(t, []string{"a"}, hitIDs(hits), cfg.TypeName())
		require.NoError(t, idx.Close())
	}
}

func TestOpen_GeneratorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("no provider")
	cfg := &config.SqliteVectorIndexConfig{
		SearchIndexBase: config.SearchIndexBase{ID: "vec"},
		Path:            filepath.Join(t.TempDir(), "vec.db"),
		Dimensions:      8,
	}
	_, err := Open(context.Background(), cfg, Deps{
		Create:     true,
		Embeddings: func(config.EmbeddingsConfig, int) (embed.Generator, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "index vec")
}

func TestOpen_MissingWithoutCreate(t *testing.T) {
	t.Parallel()

	cfg := &config.GraphIndexConfig{
		SearchIndexBase: config.SearchIndexBase{ID: "graph"},
		Path:            filepath.Join(t.TempDir(), "graph.db"),
	}
	_, err := Open(context.Background(), cfg, Deps{})
	assert.Error(t, err)
}
