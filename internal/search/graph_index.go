package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/dominikbraun/graph"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

const graphSchema = `
CREATE TABLE IF NOT EXISTS km_graph_edges (
    content_id TEXT NOT NULL,
    entity     TEXT NOT NULL,
    PRIMARY KEY (content_id, entity)
)`

// DefaultGraphDepth bounds traversal when a query sets no depth.
const DefaultGraphDepth = 3

const (
	docPrefix    = "doc:"
	entityPrefix = "ent:"
)

var (
	hashtagPattern  = regexp.MustCompile(`#([\p{L}\p{N}_][\p{L}\p{N}_-]*)`)
	wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
)

// graphIndex links records through the entities they mention: hashtags,
// [[wiki links]] and key:value tags. Records sharing an entity are one hop
// apart.
type graphIndex struct {
	base
	db *sql.DB

	mu    sync.Mutex
	g     graph.Graph[string, string]
	dirty bool
}

func openGraphIndex(ctx context.Context, cfg *config.GraphIndexConfig, create bool) (*graphIndex, error) {
	db, err := storage.OpenSQLite(cfg.Path, create)
	if err != nil {
		return nil, err
	}
	idx, err := newGraphIndex(ctx, db, cfg.ID, cfg.Required)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func newGraphIndex(ctx context.Context, db *sql.DB, id string, required bool) (*graphIndex, error) {
	if _, err := db.ExecContext(ctx, graphSchema); err != nil {
		return nil, fmt.Errorf("failed to create graph table: %w", err)
	}
	return &graphIndex{
		base:  base{id: id, typ: config.SearchIndexTypeGraph, required: required},
		db:    db,
		dirty: true,
	}, nil
}

// extractEntities returns the sorted, lowercased entities of a record.
func extractEntities(doc *storage.Content) []string {
	set := make(map[string]struct{})
	text := indexText(doc)
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		set[strings.ToLower(m[1])] = struct{}{}
	}
	for _, m := range wikiLinkPattern.FindAllStringSubmatch(text, -1) {
		if link := strings.ToLower(strings.TrimSpace(m[1])); link != "" {
			set[link] = struct{}{}
		}
	}
	for k, v := range doc.Tags {
		set[strings.ToLower(k+":"+v)] = struct{}{}
	}

	entities := make([]string, 0, len(set))
	for e := range set {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	return entities
}

func (gi *graphIndex) Upsert(ctx context.Context, doc *storage.Content) error {
	tx, err := gi.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := gi.deleteEdges(ctx, tx, doc.ID); err != nil {
		return err
	}

	entities := extractEntities(doc)
	if len(entities) > 0 {
		insert := sq.Insert("km_graph_edges").Columns("content_id", "entity")
		for _, e := range entities {
			insert = insert.Values(doc.ID, e)
		}
		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to store entities of %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	gi.invalidate()
	return nil
}

func (gi *graphIndex) Delete(ctx context.Context, id string) error {
	if err := gi.deleteEdges(ctx, gi.db, id); err != nil {
		return err
	}
	gi.invalidate()
	return nil
}

func (gi *graphIndex) deleteEdges(ctx context.Context, runner sq.BaseRunner, id string) error {
	_, err := sq.Delete("km_graph_edges").
		Where(sq.Eq{"content_id": id}).
		RunWith(runner).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear entities of %s: %w", id, err)
	}
	return nil
}

func (gi *graphIndex) invalidate() {
	gi.mu.Lock()
	gi.dirty = true
	gi.mu.Unlock()
}

// load rebuilds the in-memory graph from the edge table after writes.
// Callers hold gi.mu.
func (gi *graphIndex) load(ctx context.Context) error {
	if !gi.dirty && gi.g != nil {
		return nil
	}

	rows, err := sq.Select("content_id", "entity").
		From("km_graph_edges").
		RunWith(gi.db).
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to load graph: %w", err)
	}
	defer rows.Close()

	g := graph.New(graph.StringHash)
	for rows.Next() {
		var id, entity string
		if err := rows.Scan(&id, &entity); err != nil {
			return err
		}
		for _, v := range []string{docPrefix + id, entityPrefix + entity} {
			if err := g.AddVertex(v); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
				return fmt.Errorf("failed to add vertex %s: %w", v, err)
			}
		}
		if err := g.AddEdge(docPrefix+id, entityPrefix+entity); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return fmt.Errorf("failed to add edge %s-%s: %w", id, entity, err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	gi.g = g
	gi.dirty = false
	return nil
}

// Search walks outward from the entities named in the query. A record
// reached through n shared entities sits at depth n and scores 1/n.
func (gi *graphIndex) Search(ctx context.Context, q Query) ([]Hit, error) {
	seeds := queryEntities(q.Text)
	if len(seeds) == 0 {
		return nil, ErrEmptyQuery
	}
	maxDepth := q.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultGraphDepth
	}

	gi.mu.Lock()
	defer gi.mu.Unlock()

	if err := gi.load(ctx); err != nil {
		return nil, err
	}
	adjacency, err := gi.g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}

	// Multi-source BFS; entity seeds are at edge distance 0.
	dist := make(map[string]int)
	var queue []string
	for _, e := range seeds {
		v := entityPrefix + e
		if _, ok := adjacency[v]; ok {
			dist[v] = 0
			queue = append(queue, v)
		}
	}
	maxEdges := 2*maxDepth - 1

	var hits []Hit
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		d := dist[current]

		if id, ok := strings.CutPrefix(current, docPrefix); ok {
			depth := (d + 1) / 2
			hits = append(hits, Hit{ID: id, Relevance: 1 / float64(depth)})
		}
		if d >= maxEdges {
			continue
		}

		neighbours := make([]string, 0, len(adjacency[current]))
		for next := range adjacency[current] {
			neighbours = append(neighbours, next)
		}
		sort.Strings(neighbours)
		for _, next := range neighbours {
			if _, seen := dist[next]; !seen {
				dist[next] = d + 1
				queue = append(queue, next)
			}
		}
	}

	SortHits(hits)
	return truncate(hits, limitOrDefault(q.Limit)), nil
}

// queryEntities treats explicit #tags, [[links]] and key:value pairs in the
// query as entities, plus every plain word.
func queryEntities(text string) []string {
	entities := extractEntities(&storage.Content{Content: text})
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		seen[e] = struct{}{}
	}
	for _, field := range strings.Fields(strings.ToLower(text)) {
		if strings.Contains(field, ":") {
			if _, ok := seen[field]; !ok {
				seen[field] = struct{}{}
				entities = append(entities, field)
			}
		}
	}
	for _, w := range terms(text) {
		if _, ok := seen[w]; !ok {
			seen[w] = struct{}{}
			entities = append(entities, w)
		}
	}
	return entities
}

func (gi *graphIndex) Close() error {
	return gi.db.Close()
}
