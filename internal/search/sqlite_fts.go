package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// sqliteFTS is a full-text index on an SQLite FTS5 virtual table. The
// driver must be built with the sqlite_fts5 tag.
type sqliteFTS struct {
	base
	db *sql.DB
}

func ftsSchema(stemming bool) string {
	tokenizer := "unicode61"
	if stemming {
		tokenizer = "porter unicode61"
	}
	return fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS km_fts USING fts5(content_id UNINDEXED, content, tokenize = '%s')",
		tokenizer)
}

func openSqliteFTS(ctx context.Context, cfg *config.SqliteFTSIndexConfig, create bool) (*sqliteFTS, error) {
	db, err := storage.OpenSQLite(cfg.Path, create)
	if err != nil {
		return nil, err
	}
	idx, err := newSqliteFTS(ctx, db, cfg.ID, cfg.Required, cfg.EnableStemming)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func newSqliteFTS(ctx context.Context, db *sql.DB, id string, required, stemming bool) (*sqliteFTS, error) {
	if _, err := db.ExecContext(ctx, ftsSchema(stemming)); err != nil {
		return nil, fmt.Errorf("failed to create FTS table: %w", err)
	}
	return &sqliteFTS{
		base: base{id: id, typ: config.SearchIndexTypeSqliteFTS, required: required},
		db:   db,
	}, nil
}

func (f *sqliteFTS) Upsert(ctx context.Context, doc *storage.Content) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = sq.Delete("km_fts").
		Where(sq.Eq{"content_id": doc.ID}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear FTS entry %s: %w", doc.ID, err)
	}

	_, err = sq.Insert("km_fts").
		Columns("content_id", "content").
		Values(doc.ID, indexText(doc)).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.ID, err)
	}

	return tx.Commit()
}

func (f *sqliteFTS) Delete(ctx context.Context, id string) error {
	_, err := sq.Delete("km_fts").
		Where(sq.Eq{"content_id": id}).
		RunWith(f.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete FTS entry %s: %w", id, err)
	}
	return nil
}

// matchExpression quotes every query term and ANDs them, so user input can
// never be parsed as FTS5 syntax.
func matchExpression(text string) string {
	words := terms(text)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " AND ")
}

// Search ranks with bm25. bm25 is negative with lower meaning better, so it
// is negated and normalized by the best score in the result set.
func (f *sqliteFTS) Search(ctx context.Context, q Query) ([]Hit, error) {
	expr := matchExpression(q.Text)
	if expr == "" {
		return nil, ErrEmptyQuery
	}

	rows, err := sq.Select("content_id", "bm25(km_fts) AS rank").
		From("km_fts").
		Where("km_fts MATCH ?", expr).
		OrderBy("rank").
		Limit(uint64(limitOrDefault(q.Limit))).
		RunWith(f.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("FTS query failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id   string
			rank float64
		)
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan FTS result: %w", err)
		}
		hits = append(hits, Hit{ID: id, Relevance: -rank})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits = normalizeByMax(hits)
	SortHits(hits)
	return hits, nil
}

func (f *sqliteFTS) Close() error {
	return f.db.Close()
}
