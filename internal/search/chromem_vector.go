package search

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/philippgille/chromem-go"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/embed"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

const chromemCollection = "km"

// chromemVector keeps vectors in a persistent chromem-go collection.
type chromemVector struct {
	base
	db         *chromem.DB
	collection *chromem.Collection
	gen        embed.Generator
	dimensions int
}

func openChromemVector(cfg *config.ChromemVectorIndexConfig, gen embed.Generator, create bool) (*chromemVector, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == storage.MemoryPath {
		db = chromem.NewDB()
	} else {
		if _, statErr := os.Stat(cfg.Path); errors.Is(statErr, fs.ErrNotExist) && !create {
			return nil, fmt.Errorf("%w: %s", storage.ErrDatabaseMissing, cfg.Path)
		}
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database %s: %w", cfg.Path, err)
		}
	}

	v := &chromemVector{
		base:       base{id: cfg.ID, typ: config.SearchIndexTypeChromemVector, required: cfg.Required},
		db:         db,
		gen:        gen,
		dimensions: cfg.Dimensions,
	}

	collection, err := db.GetOrCreateCollection(chromemCollection, nil, v.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	v.collection = collection
	return v, nil
}

// embeddingFunc adapts the generator to chromem-go for documents added
// without a precomputed vector.
func (v *chromemVector) embeddingFunc(ctx context.Context, text string) ([]float32, error) {
	e, err := embed.EmbedOne(ctx, v.gen, text)
	if err != nil {
		return nil, err
	}
	return e.Vector, nil
}

func (v *chromemVector) checkDimensions(vec []float32) error {
	if len(vec) != v.dimensions {
		return fmt.Errorf("%w: index %s expects %d dimensions, got %d",
			embed.ErrDimensionMismatch, v.id, v.dimensions, len(vec))
	}
	return nil
}

func (v *chromemVector) Upsert(ctx context.Context, doc *storage.Content) error {
	text := indexText(doc)
	e, err := embed.EmbedOne(ctx, v.gen, text)
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", doc.ID, err)
	}
	return v.add(ctx, doc, text, e.Vector)
}

// UpsertBatch embeds docs in provider-sized batches before adding them.
func (v *chromemVector) UpsertBatch(ctx context.Context, docs []*storage.Content) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = indexText(doc)
	}
	embeddings, err := embed.EmbedWithProgress(ctx, v.gen, texts, embedBatchSize, nil)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		if err := v.add(ctx, doc, texts[i], embeddings[i].Vector); err != nil {
			return err
		}
	}
	return nil
}

func (v *chromemVector) add(ctx context.Context, doc *storage.Content, text string, vec []float32) error {
	if err := v.checkDimensions(vec); err != nil {
		return err
	}
	err := v.collection.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   text,
		Embedding: vec,
		Metadata:  doc.Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", doc.ID, err)
	}
	return nil
}

func (v *chromemVector) Delete(ctx context.Context, id string) error {
	if err := v.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// Search asks for at most as many results as the collection holds, which
// chromem-go requires.
func (v *chromemVector) Search(ctx context.Context, q Query) ([]Hit, error) {
	n := min(limitOrDefault(q.Limit), v.collection.Count())
	if n == 0 {
		return nil, nil
	}

	e, err := embed.EmbedOne(ctx, v.gen, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if err := v.checkDimensions(e.Vector); err != nil {
		return nil, err
	}

	results, err := v.collection.QueryEmbedding(ctx, e.Vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Relevance: clamp01(float64(r.Similarity))}
	}
	SortHits(hits)
	return hits, nil
}

func (v *chromemVector) Close() error { return nil }
