// Package search implements the per-node search indexes.
//
// Every index stores its own derived data (FTS tokens, vectors, entity
// edges) keyed by content id and answers queries with hits whose
// Relevance lies in [0,1], so results from different index types and
// nodes can be merged on one scale.
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// ErrEmptyQuery is returned for queries without searchable terms.
var ErrEmptyQuery = errors.New("query has no searchable terms")

// Hit is one ranked match.
type Hit struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
}

// Query is the input to Index.Search.
type Query struct {
	Text  string
	Limit int
	// MaxDepth bounds graph traversal.
	MaxDepth int
}

// Index is one configured search index of a node.
type Index interface {
	ID() string
	Type() string
	Required() bool

	// Upsert (re)indexes a record.
	Upsert(ctx context.Context, doc *storage.Content) error
	// Delete removes a record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// Search returns hits ordered by descending relevance.
	Search(ctx context.Context, q Query) ([]Hit, error)

	Close() error
}

// BatchIndexer is implemented by indexes that can index many records more
// efficiently than one Upsert at a time.
type BatchIndexer interface {
	UpsertBatch(ctx context.Context, docs []*storage.Content) error
}

type base struct {
	id       string
	typ      string
	required bool
}

func (b base) ID() string     { return b.id }
func (b base) Type() string   { return b.typ }
func (b base) Required() bool { return b.required }

// indexText is the text every index derives its data from.
func indexText(doc *storage.Content) string {
	if doc.Title == "" {
		return doc.Content
	}
	return doc.Title + "\n\n" + doc.Content
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

// terms splits text into lowercase words.
func terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}
