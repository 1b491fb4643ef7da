package search

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// bleveFTS is a persistent bleve index using the English analyzer, which
// stems and drops stop words.
type bleveFTS struct {
	base
	index bleve.Index
}

type bleveDoc struct {
	Content string `json:"content"`
}

func buildBleveMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	contentMapping := bleve.NewTextFieldMapping()
	contentMapping.Analyzer = en.AnalyzerName
	contentMapping.Store = false
	contentMapping.Index = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentMapping)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	return indexMapping
}

func openBleveFTS(cfg *config.BleveFTSIndexConfig, create bool) (*bleveFTS, error) {
	index, err := openBleveIndex(cfg.Path, create)
	if err != nil {
		return nil, err
	}
	return &bleveFTS{
		base:  base{id: cfg.ID, typ: config.SearchIndexTypeBleveFTS, required: cfg.Required},
		index: index,
	}, nil
}

func openBleveIndex(path string, create bool) (bleve.Index, error) {
	if path == storage.MemoryPath {
		return bleve.NewMemOnly(buildBleveMapping())
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bleve index %s: %w", path, err)
		}
		return index, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to stat bleve index %s: %w", path, err)
	case !create:
		return nil, fmt.Errorf("%w: %s", storage.ErrDatabaseMissing, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, buildBleveMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index %s: %w", path, err)
	}
	return index, nil
}

func (b *bleveFTS) Upsert(ctx context.Context, doc *storage.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Index(doc.ID, bleveDoc{Content: indexText(doc)}); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.ID, err)
	}
	return nil
}

// UpsertBatch indexes docs in one bleve batch.
func (b *bleveFTS) UpsertBatch(ctx context.Context, docs []*storage.Content) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(doc.ID, bleveDoc{Content: indexText(doc)}); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (b *bleveFTS) Delete(ctx context.Context, id string) error {
	if err := b.index.Delete(id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// Search runs a match query on content; every term must match.
func (b *bleveFTS) Search(ctx context.Context, q Query) ([]Hit, error) {
	if len(terms(q.Text)) == 0 {
		return nil, ErrEmptyQuery
	}

	match := bleve.NewMatchQuery(q.Text)
	match.SetField("content")
	match.SetOperator(query.MatchQueryOperatorAnd)

	req := bleve.NewSearchRequestOptions(match, limitOrDefault(q.Limit), 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Relevance: h.Score})
	}
	hits = normalizeByMax(hits)
	SortHits(hits)
	return hits, nil
}

func (b *bleveFTS) Close() error {
	return b.index.Close()
}
