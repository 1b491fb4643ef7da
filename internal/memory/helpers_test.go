package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/search"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// stubIndex returns fixed hits, optionally blocking until released.
type stubIndex struct {
	hits  []search.Hit
	err   error
	block chan struct{}
}

func (s *stubIndex) ID() string                                     { return "stub" }
func (s *stubIndex) Type() string                                   { return "stub" }
func (s *stubIndex) Required() bool                                 { return true }
func (s *stubIndex) Upsert(context.Context, *storage.Content) error { return nil }
func (s *stubIndex) Delete(context.Context, string) error           { return nil }
func (s *stubIndex) Close() error                                   { return nil }

func (s *stubIndex) Search(context.Context, search.Query) ([]search.Hit, error) {
	if s.block != nil {
		<-s.block
	}
	return s.hits, s.err
}

// staticNodes serves prebuilt nodes and programmable open failures.
type staticNodes struct {
	nodes map[string]*node.Node
	errs  map[string]error
}

func (s *staticNodes) Acquire(_ context.Context, id string, _ bool) (*node.Node, func(), error) {
	if err := s.errs[id]; err != nil {
		return nil, nil, err
	}
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", storage.ErrDatabaseMissing, id)
	}
	return n, func() {}, nil
}

func (s *staticNodes) Close() error { return nil }

func nodeCfg(id string, access config.AccessLevel, weight float64) *config.NodeConfig {
	return &config.NodeConfig{
		ID:           id,
		Access:       access,
		Weight:       weight,
		ContentIndex: &config.SqliteContentIndexConfig{Path: storage.MemoryPath},
	}
}

func appConfig(nodes ...*config.NodeConfig) *config.AppConfig {
	cfg := &config.AppConfig{Nodes: map[string]*config.NodeConfig{}, Search: config.DefaultSearchConfig()}
	for _, n := range nodes {
		cfg.Nodes[n.ID] = n
	}
	return cfg
}

// buildNode creates a node holding docs whose only index returns hits.
func buildNode(t *testing.T, cfg *config.NodeConfig, idx search.Index, docs ...*storage.Content) *node.Node {
	t.Helper()
	content, err := storage.NewContentIndex(context.Background(), storage.NewTestDB(t), storage.SQLite)
	require.NoError(t, err)
	for _, d := range docs {
		_, err := content.Upsert(context.Background(), d)
		require.NoError(t, err)
	}
	var indexes []search.Index
	if idx != nil {
		indexes = append(indexes, idx)
	}
	return node.New(cfg, content, indexes, nil, zerolog.Nop())
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.NodeID + "/" + r.ID
	}
	return ids
}
