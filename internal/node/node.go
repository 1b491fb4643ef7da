// Package node runs one configured node: its content index, its search
// indexes and its optional file storage.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/embed"
	"github.com/mvp-joe/kernel-memory/internal/search"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

var (
	// ErrReadOnly is returned for writes to a node with ReadOnly access.
	ErrReadOnly = errors.New("node is read-only")

	// ErrNoFileStorage is returned when a file is attached to a node
	// without file storage.
	ErrNoFileStorage = errors.New("node has no file storage")
)

// Options control how a node is opened.
type Options struct {
	// Create allows missing databases to be created. Search opens nodes
	// with Create unset so a missing database marks the node as broken.
	Create bool

	// Embeddings overrides the generator factory of vector indexes.
	Embeddings search.GeneratorFunc

	// Cache is the embeddings cache handed to generators built by the
	// default factory.
	Cache embed.Store

	Logger zerolog.Logger
}

// Node is an opened node.
type Node struct {
	cfg     *config.NodeConfig
	content *storage.ContentIndex
	indexes []search.Index
	files   *storage.FileStore
	logger  zerolog.Logger
}

// PutResult reports the outcome of a write.
type PutResult struct {
	ID            string   `json:"id" yaml:"id"`
	NodeID        string   `json:"nodeId" yaml:"nodeId"`
	Completed     bool     `json:"completed" yaml:"completed"`
	FailedIndexes []string `json:"failedIndexes,omitempty" yaml:"failedIndexes,omitempty"`
}

// Open opens the content index, file storage and search indexes of cfg.
//
// A required search index that fails to open fails the node. An optional
// one is logged and left out.
func Open(ctx context.Context, cfg *config.NodeConfig, opts Options) (*Node, error) {
	content, err := storage.OpenContentIndex(ctx, cfg.ContentIndex, opts.Create)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", cfg.ID, err)
	}

	logger := opts.Logger.With().Str("node", cfg.ID).Logger()

	var files *storage.FileStore
	if cfg.FileStorage != nil {
		files, err = storage.OpenFileStore(cfg.FileStorage)
		if err != nil {
			logger.Warn().Err(err).Msg("file storage unavailable")
			files = nil
		}
	}

	deps := search.Deps{Create: opts.Create, Embeddings: opts.Embeddings}
	if deps.Embeddings == nil {
		deps.Embeddings = func(ec config.EmbeddingsConfig, dims int) (embed.Generator, error) {
			return embed.New(ec, dims, embed.Options{Cache: opts.Cache, Logger: opts.Logger})
		}
	}

	indexes := make([]search.Index, 0, len(cfg.SearchIndexes))
	for _, ic := range cfg.SearchIndexes {
		idx, err := search.Open(ctx, ic, deps)
		if err != nil {
			if ic.IsRequired() {
				for _, opened := range indexes {
					opened.Close()
				}
				content.Close()
				return nil, fmt.Errorf("node %s: required index %s: %w", cfg.ID, ic.IndexID(), err)
			}
			logger.Warn().Err(err).Str("index", ic.IndexID()).Msg("search index unavailable")
			continue
		}
		indexes = append(indexes, idx)
	}

	return New(cfg, content, indexes, files, logger), nil
}

// New assembles a node from already opened parts.
func New(cfg *config.NodeConfig, content *storage.ContentIndex, indexes []search.Index, files *storage.FileStore, logger zerolog.Logger) *Node {
	return &Node{cfg: cfg, content: content, indexes: indexes, files: files, logger: logger}
}

func (n *Node) ID() string                 { return n.cfg.ID }
func (n *Node) Weight() float64            { return n.cfg.Weight }
func (n *Node) Writable() bool             { return n.cfg.Writable() }
func (n *Node) Config() *config.NodeConfig { return n.cfg }
func (n *Node) Indexes() []search.Index    { return n.indexes }

// Files returns the node's file storage, nil when none is configured.
func (n *Node) Files() *storage.FileStore { return n.files }

// Put stores doc and indexes it in every search index. A new id is
// generated when doc has none.
func (n *Node) Put(ctx context.Context, doc *storage.Content) (*PutResult, error) {
	if !n.Writable() {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, n.cfg.ID)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	prev, err := n.content.Get(ctx, doc.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	stored, err := n.content.Upsert(ctx, doc)
	if err != nil {
		return nil, err
	}

	result := &PutResult{ID: stored.ID, NodeID: n.cfg.ID, Completed: true}
	for i, idx := range n.indexes {
		start := time.Now()
		if err := idx.Upsert(ctx, stored); err != nil {
			if idx.Required() {
				n.rollback(ctx, stored.ID, prev, n.indexes[:i])
				return nil, fmt.Errorf("required index %s failed: %w", idx.ID(), err)
			}
			n.logger.Warn().Err(err).Str("index", idx.ID()).Str("id", stored.ID).Msg("optional index failed")
			result.Completed = false
			result.FailedIndexes = append(result.FailedIndexes, idx.ID())
			continue
		}
		n.logger.Debug().Str("index", idx.ID()).Str("id", stored.ID).Dur("took", time.Since(start)).Msg("indexed")
	}
	return result, nil
}

// rollback undoes a put whose required index failed. The previous version
// of the record is restored when there was one, otherwise the record is
// removed from content and from the indexes it already reached.
func (n *Node) rollback(ctx context.Context, id string, prev *storage.Content, touched []search.Index) {
	log := n.logger.With().Str("id", id).Logger()
	if prev == nil {
		if _, err := n.content.Delete(ctx, id); err != nil {
			log.Warn().Err(err).Msg("rollback: content delete failed")
		}
		for _, idx := range touched {
			if err := idx.Delete(ctx, id); err != nil {
				log.Warn().Err(err).Str("index", idx.ID()).Msg("rollback: index delete failed")
			}
		}
		return
	}

	if _, err := n.content.Upsert(ctx, prev); err != nil {
		log.Warn().Err(err).Msg("rollback: content restore failed")
		return
	}
	for _, idx := range touched {
		if err := idx.Upsert(ctx, prev); err != nil {
			log.Warn().Err(err).Str("index", idx.ID()).Msg("rollback: index restore failed")
		}
	}
}

// AttachFile stores a source file next to a record as "<id>/<base name>".
func (n *Node) AttachFile(id, name string, r io.Reader) (string, error) {
	if !n.Writable() {
		return "", fmt.Errorf("%w: %s", ErrReadOnly, n.cfg.ID)
	}
	if n.files == nil {
		return "", fmt.Errorf("%w: %s", ErrNoFileStorage, n.cfg.ID)
	}
	key := path.Join(id, path.Base(name))
	if _, err := n.files.Write(key, r); err != nil {
		return "", err
	}
	return key, nil
}

func (n *Node) Get(ctx context.Context, id string) (*storage.Content, error) {
	return n.content.Get(ctx, id)
}

func (n *Node) GetMany(ctx context.Context, ids []string) (map[string]*storage.Content, error) {
	return n.content.GetMany(ctx, ids)
}

func (n *Node) List(ctx context.Context, skip, take int) ([]*storage.Content, error) {
	return n.content.List(ctx, skip, take)
}

func (n *Node) Count(ctx context.Context) (int, error) {
	return n.content.Count(ctx)
}

// Delete removes a record from the content index, every search index and
// file storage. It reports whether the record existed.
func (n *Node) Delete(ctx context.Context, id string) (bool, error) {
	if !n.Writable() {
		return false, fmt.Errorf("%w: %s", ErrReadOnly, n.cfg.ID)
	}

	existed, err := n.content.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	for _, idx := range n.indexes {
		if err := idx.Delete(ctx, id); err != nil {
			if idx.Required() {
				return existed, fmt.Errorf("required index %s failed: %w", idx.ID(), err)
			}
			n.logger.Warn().Err(err).Str("index", idx.ID()).Str("id", id).Msg("optional index delete failed")
		}
	}
	if n.files != nil {
		if _, err := n.files.Remove(id); err != nil {
			n.logger.Warn().Err(err).Str("id", id).Msg("failed to remove stored files")
		}
	}
	return existed, nil
}

// Search queries every index and keeps each record's best relevance.
//
// An optional index that fails is logged and ignored. A required index
// failure fails the search. Queries with no searchable terms yield no hits.
func (n *Node) Search(ctx context.Context, q search.Query) ([]search.Hit, error) {
	best := make(map[string]float64)
	var order []string

	for _, idx := range n.indexes {
		hits, err := idx.Search(ctx, q)
		if err != nil {
			if errors.Is(err, search.ErrEmptyQuery) {
				continue
			}
			if idx.Required() || ctx.Err() != nil {
				return nil, fmt.Errorf("index %s: %w", idx.ID(), err)
			}
			n.logger.Warn().Err(err).Str("index", idx.ID()).Msg("optional index search failed")
			continue
		}
		for _, h := range hits {
			prev, seen := best[h.ID]
			if !seen {
				order = append(order, h.ID)
			}
			if !seen || h.Relevance > prev {
				best[h.ID] = h.Relevance
			}
		}
	}

	hits := make([]search.Hit, len(order))
	for i, id := range order {
		hits[i] = search.Hit{ID: id, Relevance: best[id]}
	}
	search.SortHits(hits)
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// Close releases the search indexes and the content index.
func (n *Node) Close() error {
	var errs []error
	for _, idx := range n.indexes {
		errs = append(errs, idx.Close())
	}
	errs = append(errs, n.content.Close())
	return errors.Join(errs...)
}
