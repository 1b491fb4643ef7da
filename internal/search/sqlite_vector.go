package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/embed"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

const vectorSchema = `
CREATE TABLE IF NOT EXISTS km_vectors (
    content_id TEXT PRIMARY KEY,
    vector     BLOB NOT NULL,
    created_at TEXT NOT NULL
)`

// embedBatchSize bounds provider requests during batch indexing.
const embedBatchSize = 32

// sqliteVector stores one float32 vector per record in SQLite. With
// sqlite-vec the ranking runs in SQL; otherwise every vector is scored in
// process.
type sqliteVector struct {
	base
	db         *sql.DB
	gen        embed.Generator
	dimensions int
	useVec     bool
}

func openSqliteVector(ctx context.Context, cfg *config.SqliteVectorIndexConfig, gen embed.Generator, create bool) (*sqliteVector, error) {
	db, err := storage.OpenSQLite(cfg.Path, create)
	if err != nil {
		return nil, err
	}
	idx, err := newSqliteVector(ctx, db, cfg.ID, cfg.Required, cfg.Dimensions, cfg.UseSqliteVec, gen)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func newSqliteVector(ctx context.Context, db *sql.DB, id string, required bool, dimensions int, useVec bool, gen embed.Generator) (*sqliteVector, error) {
	if _, err := db.ExecContext(ctx, vectorSchema); err != nil {
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}
	return &sqliteVector{
		base:       base{id: id, typ: config.SearchIndexTypeSqliteVector, required: required},
		db:         db,
		gen:        gen,
		dimensions: dimensions,
		useVec:     useVec,
	}, nil
}

func (v *sqliteVector) checkDimensions(vec []float32) error {
	if len(vec) != v.dimensions {
		return fmt.Errorf("%w: index %s expects %d dimensions, got %d",
			embed.ErrDimensionMismatch, v.id, v.dimensions, len(vec))
	}
	return nil
}

func (v *sqliteVector) Upsert(ctx context.Context, doc *storage.Content) error {
	e, err := embed.EmbedOne(ctx, v.gen, indexText(doc))
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", doc.ID, err)
	}
	return v.store(ctx, v.db, doc.ID, e.Vector)
}

// UpsertBatch embeds docs in provider-sized batches and stores all vectors
// in one transaction.
func (v *sqliteVector) UpsertBatch(ctx context.Context, docs []*storage.Content) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = indexText(doc)
	}
	embeddings, err := embed.EmbedWithProgress(ctx, v.gen, texts, embedBatchSize, nil)
	if err != nil {
		return err
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, doc := range docs {
		if err := v.store(ctx, tx, doc.ID, embeddings[i].Vector); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (v *sqliteVector) store(ctx context.Context, runner sq.BaseRunner, id string, vec []float32) error {
	if err := v.checkDimensions(vec); err != nil {
		return err
	}
	_, err := sq.Insert("km_vectors").
		Columns("content_id", "vector", "created_at").
		Values(id, storage.SerializeVector(vec), time.Now().UTC().Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT (content_id) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at").
		RunWith(runner).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to store vector for %s: %w", id, err)
	}
	return nil
}

func (v *sqliteVector) Delete(ctx context.Context, id string) error {
	_, err := sq.Delete("km_vectors").
		Where(sq.Eq{"content_id": id}).
		RunWith(v.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete vector %s: %w", id, err)
	}
	return nil
}

// Search embeds the query and ranks by cosine similarity, clamped to [0,1].
func (v *sqliteVector) Search(ctx context.Context, q Query) ([]Hit, error) {
	e, err := embed.EmbedOne(ctx, v.gen, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if err := v.checkDimensions(e.Vector); err != nil {
		return nil, err
	}

	limit := limitOrDefault(q.Limit)
	if v.useVec {
		return v.searchVec(ctx, e.Vector, limit)
	}
	return v.searchScan(ctx, e.Vector, limit)
}

// searchVec ranks with sqlite-vec's vec_distance_cosine (0 identical, 2
// opposite).
func (v *sqliteVector) searchVec(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	rows, err := sq.Select("content_id").
		Column("vec_distance_cosine(vector, ?) AS distance", storage.SerializeVector(query)).
		From("km_vectors").
		OrderBy("distance").
		Limit(uint64(limit)).
		RunWith(v.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search query failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, Hit{ID: id, Relevance: clamp01(1 - distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortHits(hits)
	return hits, nil
}

func (v *sqliteVector) searchScan(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	rows, err := sq.Select("content_id", "vector").
		From("km_vectors").
		RunWith(v.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector scan failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := storage.DeserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("vector %s: %w", id, err)
		}
		if len(vec) != len(query) {
			return nil, fmt.Errorf("%w: stored vector %s has %d dimensions, query has %d",
				embed.ErrDimensionMismatch, id, len(vec), len(query))
		}
		hits = append(hits, Hit{ID: id, Relevance: clamp01(cosine(query, vec))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	SortHits(hits)
	return truncate(hits, limit), nil
}

func (v *sqliteVector) Close() error {
	return v.db.Close()
}
