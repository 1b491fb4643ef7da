// Package memory is the multi-node layer of km: it routes writes to a node,
// fans searches out to every selected node and merges the results.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/metrics"
	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// Options configure a Service.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Service answers requests against the configured nodes.
type Service struct {
	cfg     *config.AppConfig
	nodes   Nodes
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewService creates a service over cfg. The service owns nodes.
func NewService(cfg *config.AppConfig, nodes Nodes, opts Options) *Service {
	return &Service{
		cfg:     cfg,
		nodes:   nodes,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

func (s *Service) Config() *config.AppConfig { return s.cfg }

func (s *Service) Close() error { return s.nodes.Close() }

// Record is a stored record together with the node holding it.
type Record struct {
	NodeID           string `json:"nodeId" yaml:"nodeId"`
	*storage.Content `yaml:",inline"`
}

// Put writes doc to nodeID, or to the default writable node when nodeID
// is empty. Missing databases are created.
func (s *Service) Put(ctx context.Context, nodeID string, doc *storage.Content) (*node.PutResult, error) {
	target, err := WriteTarget(s.cfg, nodeID)
	if err != nil {
		return nil, err
	}

	n, release, err := s.nodes.Acquire(ctx, target, true)
	if err != nil {
		s.metrics.ObservePut(target, err)
		return nil, err
	}
	defer release()

	res, err := n.Put(ctx, doc)
	s.metrics.ObservePut(target, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("node", target).
		Str("id", res.ID).
		Bool("completed", res.Completed).
		Msg("content stored")
	return res, nil
}

// AttachFile stores a source file for record id in the node's file storage.
func (s *Service) AttachFile(ctx context.Context, nodeID, id, name string, r io.Reader) (string, error) {
	target, err := WriteTarget(s.cfg, nodeID)
	if err != nil {
		return "", err
	}
	n, release, err := s.nodes.Acquire(ctx, target, true)
	if err != nil {
		return "", err
	}
	defer release()
	return n.AttachFile(id, name, r)
}

// Get returns record id from nodeID. Without a node id every default node
// is tried in order and broken nodes are skipped.
func (s *Service) Get(ctx context.Context, nodeID, id string) (*Record, error) {
	var candidates []string
	if nodeID != "" {
		target, err := ReadTarget(s.cfg, nodeID)
		if err != nil {
			return nil, err
		}
		candidates = []string{target}
	} else {
		targets, err := ResolveTargets(s.cfg, nil, nil)
		if err != nil {
			return nil, err
		}
		candidates = targets
	}

	for _, target := range candidates {
		doc, err := s.getFrom(ctx, target, id)
		switch {
		case err == nil:
			return &Record{NodeID: target, Content: doc}, nil
		case errors.Is(err, storage.ErrNotFound):
			continue
		case nodeID == "" && errors.Is(err, storage.ErrDatabaseMissing):
			s.logger.Debug().Str("node", target).Msg("node has no database yet")
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
}

func (s *Service) getFrom(ctx context.Context, nodeID, id string) (*storage.Content, error) {
	n, release, err := s.nodes.Acquire(ctx, nodeID, false)
	if err != nil {
		return nil, err
	}
	defer release()
	return n.Get(ctx, id)
}

// Delete removes id from nodeID or the default writable node. A node
// without a database has nothing to delete.
func (s *Service) Delete(ctx context.Context, nodeID, id string) (bool, error) {
	target, err := WriteTarget(s.cfg, nodeID)
	if err != nil {
		return false, err
	}
	n, release, err := s.nodes.Acquire(ctx, target, false)
	if errors.Is(err, storage.ErrDatabaseMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer release()

	existed, err := n.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.logger.Info().Str("node", target).Str("id", id).Bool("existed", existed).Msg("content deleted")
	return existed, nil
}

// ListResult is one page of a node's records.
type ListResult struct {
	NodeID string             `json:"nodeId" yaml:"nodeId"`
	Total  int                `json:"total" yaml:"total"`
	Items  []*storage.Content `json:"items" yaml:"items"`
}

// List pages through the records of nodeID or the first default node.
func (s *Service) List(ctx context.Context, nodeID string, skip, take int) (*ListResult, error) {
	target, err := ReadTarget(s.cfg, nodeID)
	if err != nil {
		return nil, err
	}
	result := &ListResult{NodeID: target, Items: []*storage.Content{}}

	n, release, err := s.nodes.Acquire(ctx, target, false)
	if errors.Is(err, storage.ErrDatabaseMissing) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	defer release()

	if result.Total, err = n.Count(ctx); err != nil {
		return nil, err
	}
	items, err := n.List(ctx, skip, take)
	if err != nil {
		return nil, err
	}
	if items != nil {
		result.Items = items
	}
	return result, nil
}

// Reindex rebuilds the search indexes of nodeID or the default writable
// node.
func (s *Service) Reindex(ctx context.Context, nodeID string, progress node.ProgressReporter) (*node.ReindexStats, error) {
	target, err := WriteTarget(s.cfg, nodeID)
	if err != nil {
		return nil, err
	}
	n, release, err := s.nodes.Acquire(ctx, target, true)
	if err != nil {
		return nil, err
	}
	defer release()
	return n.Reindex(ctx, progress)
}

// IndexSummary describes one configured search index.
type IndexSummary struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// NodeSummary describes one configured node and its state.
type NodeSummary struct {
	ID            string         `json:"id" yaml:"id"`
	Access        string         `json:"access" yaml:"access"`
	Weight        float64        `json:"weight" yaml:"weight"`
	ContentIndex  string         `json:"contentIndex" yaml:"contentIndex"`
	SearchIndexes []IndexSummary `json:"searchIndexes" yaml:"searchIndexes"`
	Records       int            `json:"records" yaml:"records"`
	Status        string         `json:"status" yaml:"status"`
}

const (
	StatusOK      = "ok"
	StatusMissing = "missing"
)

// Nodes summarizes every configured node in sorted order. Nodes are opened
// read-only; a node without a database reports StatusMissing.
func (s *Service) Nodes(ctx context.Context) []NodeSummary {
	ids := s.cfg.NodeIDs()
	out := make([]NodeSummary, 0, len(ids))
	for _, id := range ids {
		nc := s.cfg.Node(id)
		summary := NodeSummary{
			ID:            id,
			Access:        string(nc.Access),
			Weight:        nc.Weight,
			ContentIndex:  nc.ContentIndex.TypeName(),
			SearchIndexes: make([]IndexSummary, 0, len(nc.SearchIndexes)),
			Status:        StatusOK,
		}
		for _, ic := range nc.SearchIndexes {
			summary.SearchIndexes = append(summary.SearchIndexes, IndexSummary{
				ID: ic.IndexID(), Type: ic.TypeName(), Required: ic.IsRequired(),
			})
		}
		summary.Records, summary.Status = s.count(ctx, id)
		out = append(out, summary)
	}
	return out
}

func (s *Service) count(ctx context.Context, id string) (int, string) {
	n, release, err := s.nodes.Acquire(ctx, id, false)
	if errors.Is(err, storage.ErrDatabaseMissing) {
		return 0, StatusMissing
	}
	if err != nil {
		return 0, err.Error()
	}
	defer release()

	count, err := n.Count(ctx)
	if err != nil {
		return 0, err.Error()
	}
	return count, StatusOK
}
