package memory

import (
	"bytes"
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/embed"
	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// Test Plan for Service:
// - Put without a node goes to the first writable default node
// - Put to a read-only node fails with node.ErrReadOnly
// - Get without a node searches default nodes and skips missing databases
// - Delete and List on a node without a database succeed with nothing
// - End to end: stemming search across two on-disk nodes, one never written
// - Nodes reports record counts and missing databases
// - Reindex rebuilds the default node's indexes
// - AttachFile stores files in the node's file storage
// - Pool opens a node once, reuses it and closes it on Close
// - Pool keeps a node across spaced acquisitions
// - Pool opens one node while another node's open is slow
// - Pool reopens a read-opened node for writes, then reuses the writable one
// - Pool writes reach an optional index added after the database existed
// - Pool keeps a node busier than the TTL and closes it once idle

func mockGenerators(_ config.EmbeddingsConfig, dims int) (embed.Generator, error) {
	return embed.NewMockGenerator(dims), nil
}

// diskConfig returns two on-disk nodes: "working" (full) and "archive"
// (read-only, never created).
func diskConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	mk := func(id string, access config.AccessLevel) *config.NodeConfig {
		return &config.NodeConfig{
			ID:           id,
			Access:       access,
			Weight:       1,
			ContentIndex: &config.SqliteContentIndexConfig{Path: filepath.Join(dir, id, "content.db")},
			FileStorage:  &config.DiskStorageConfig{Path: filepath.Join(dir, id, "files")},
			SearchIndexes: []config.SearchIndexConfig{
				&config.SqliteFTSIndexConfig{
					SearchIndexBase: config.SearchIndexBase{ID: "fts", Required: true},
					Path:            filepath.Join(dir, id, "fts.db"),
					EnableStemming:  true,
				},
			},
		}
	}
	return appConfig(mk("working", config.AccessFull), mk("archive", config.AccessReadOnly))
}

func newDiskService(t *testing.T, cfg *config.AppConfig) *Service {
	t.Helper()
	svc := NewService(cfg, NewOnDemand(cfg, NodeOpener(node.Options{Embeddings: mockGenerators, Logger: zerolog.Nop()})), Options{Logger: zerolog.Nop()})
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestService_EndToEndStemming(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newDiskService(t, diskConfig(t))

	for id, text := range map[string]string{
		"doc1": "We test the software thoroughly",
		"doc2": "Testing is important for quality",
		"doc3": "All tests passed successfully",
	} {
		res, err := svc.Put(ctx, "", &storage.Content{ID: id, Content: text})
		require.NoError(t, err)
		assert.Equal(t, "working", res.NodeID)
		assert.True(t, res.Completed)
	}

	for _, q := range []string{"testing", "tested"} {
		resp, err := svc.Search(ctx, SearchRequest{Query: q})
		require.NoError(t, err)
		assert.Equal(t, 3, resp.TotalResults, "query %q", q)

		// Test: the archive node has no database and is skipped
		require.Len(t, resp.SkippedNodes, 1)
		assert.Equal(t, "archive", resp.SkippedNodes[0].NodeID)
	}
}

func TestService_PutReadOnly(t *testing.T) {
	t.Parallel()

	svc := newDiskService(t, diskConfig(t))
	_, err := svc.Put(context.Background(), "archive", &storage.Content{Content: "x"})
	assert.ErrorIs(t, err, node.ErrReadOnly)
}

func TestService_GetListDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newDiskService(t, diskConfig(t))

	// Test: nothing written yet
	_, err := svc.Get(ctx, "", "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	page, err := svc.List(ctx, "working", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)
	existed, err := svc.Delete(ctx, "", "a")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = svc.Put(ctx, "working", &storage.Content{ID: "a", Content: "hello", Tags: map[string]string{"k": "v"}})
	require.NoError(t, err)

	rec, err := svc.Get(ctx, "", "a")
	require.NoError(t, err)
	assert.Equal(t, "working", rec.NodeID)
	assert.Equal(t, "hello", rec.Content.Content)
	assert.Equal(t, map[string]string{"k": "v"}, rec.Tags)

	page, err = svc.List(ctx, "working", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)

	existed, err = svc.Delete(ctx, "", "a")
	require.NoError(t, err)
	assert.True(t, existed)
	_, err = svc.Get(ctx, "working", "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_NodesAndReindex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newDiskService(t, diskConfig(t))
	_, err := svc.Put(ctx, "", &storage.Content{ID: "a", Content: "one"})
	require.NoError(t, err)

	summaries := svc.Nodes(ctx)
	require.Len(t, summaries, 2)
	assert.Equal(t, "archive", summaries[0].ID)
	assert.Equal(t, StatusMissing, summaries[0].Status)
	assert.Equal(t, "working", summaries[1].ID)
	assert.Equal(t, StatusOK, summaries[1].Status)
	assert.Equal(t, 1, summaries[1].Records)
	assert.Equal(t, []IndexSummary{{ID: "fts", Type: config.SearchIndexTypeSqliteFTS, Required: true}}, summaries[1].SearchIndexes)

	stats, err := svc.Reindex(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "working", stats.NodeID)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, []string{"fts"}, stats.Indexes)
}

func TestService_AttachFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := diskConfig(t)
	svc := newDiskService(t, cfg)

	key, err := svc.AttachFile(ctx, "", "a", "notes.txt", bytes.NewBufferString("raw"))
	require.NoError(t, err)
	assert.Equal(t, "a/notes.txt", key)
	assert.FileExists(t, filepath.Join(cfg.Node("working").FileStorage.(*config.DiskStorageConfig).Path, "a", "notes.txt"))
}

func TestPool_ReusesAndCloses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := diskConfig(t)
	var opens atomic.Int32
	base := NodeOpener(node.Options{Logger: zerolog.Nop()})
	counting := func(ctx context.Context, nc *config.NodeConfig, create bool) (*node.Node, error) {
		opens.Add(1)
		return base(ctx, nc, create)
	}

	pool, err := NewPool(cfg, counting, time.Hour)
	require.NoError(t, err)

	_, _, err = pool.Acquire(ctx, "archive", false)
	assert.ErrorIs(t, err, storage.ErrDatabaseMissing)

	n1, release1, err := pool.Acquire(ctx, "working", true)
	require.NoError(t, err)
	n2, release2, err := pool.Acquire(ctx, "working", false)
	require.NoError(t, err)
	assert.Same(t, n1, n2)
	release1()
	release2()
	release2()

	assert.Equal(t, int32(2), opens.Load())

	_, _, err = pool.Acquire(ctx, "nope", false)
	assert.ErrorIs(t, err, ErrUnknownNode)

	require.NoError(t, pool.Close())
}

// countingOpener wraps NodeOpener and counts opens.
func countingOpener() (Opener, *atomic.Int32) {
	var opens atomic.Int32
	base := NodeOpener(node.Options{Embeddings: mockGenerators, Logger: zerolog.Nop()})
	return func(ctx context.Context, nc *config.NodeConfig, create bool) (*node.Node, error) {
		opens.Add(1)
		return base(ctx, nc, create)
	}, &opens
}

func newTestPool(t *testing.T, cfg *config.AppConfig, open Opener, ttl time.Duration) *Pool {
	t.Helper()
	pool, err := NewPool(cfg, open, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestPool_KeepsNodeAcrossSpacedAcquisitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	open, opens := countingOpener()
	pool := newTestPool(t, diskConfig(t), open, time.Hour)

	for range 5 {
		_, release, err := pool.Acquire(ctx, "working", true)
		require.NoError(t, err)
		release()
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(t, int32(1), opens.Load())
}

func TestPool_SlowOpenDoesNotBlockOtherNodes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base, _ := countingOpener()
	gate := make(chan struct{})
	open := func(ctx context.Context, nc *config.NodeConfig, create bool) (*node.Node, error) {
		if nc.ID == "archive" {
			<-gate
		}
		return base(ctx, nc, create)
	}
	pool := newTestPool(t, diskConfig(t), open, time.Hour)

	slow := make(chan error, 1)
	go func() {
		_, _, err := pool.Acquire(ctx, "archive", false)
		slow <- err
	}()

	done := make(chan error, 1)
	go func() {
		_, release, err := pool.Acquire(ctx, "working", true)
		if err == nil {
			release()
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acquiring working waited on archive")
	}

	close(gate)
	assert.ErrorIs(t, <-slow, storage.ErrDatabaseMissing)
}

func TestPool_ReopensReadNodeForWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := diskConfig(t)
	seed := newDiskService(t, cfg)
	_, err := seed.Put(ctx, "working", &storage.Content{ID: "a", Content: "seed"})
	require.NoError(t, err)

	open, opens := countingOpener()
	pool := newTestPool(t, cfg, open, time.Hour)

	reader, release, err := pool.Acquire(ctx, "working", false)
	require.NoError(t, err)
	release()

	writer, release, err := pool.Acquire(ctx, "working", true)
	require.NoError(t, err)
	release()
	assert.NotSame(t, reader, writer)
	assert.Equal(t, int32(2), opens.Load())

	// Test: later acquisitions of either kind reuse the writable node
	for _, create := range []bool{false, true} {
		n, release, err := pool.Acquire(ctx, "working", create)
		require.NoError(t, err)
		release()
		assert.Same(t, writer, n)
	}
	assert.Equal(t, int32(2), opens.Load())
}

func TestPool_WritesReachIndexAddedLater(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := diskConfig(t)
	seed := newDiskService(t, cfg)
	_, err := seed.Put(ctx, "working", &storage.Content{ID: "a", Content: "before the graph"})
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	working := cfg.Node("working")
	working.SearchIndexes = append(working.SearchIndexes, &config.GraphIndexConfig{
		SearchIndexBase: config.SearchIndexBase{ID: "graph"},
		Path:            filepath.Join(filepath.Dir(working.ContentIndex.(*config.SqliteContentIndexConfig).Path), "graph.db"),
	})

	open, _ := countingOpener()
	pool := newTestPool(t, cfg, open, time.Hour)
	svc := NewService(cfg, pool, Options{Logger: zerolog.Nop()})

	_, err = svc.Search(ctx, SearchRequest{Query: "graph"})
	require.NoError(t, err)

	res, err := svc.Put(ctx, "working", &storage.Content{ID: "b", Content: "notes on #golang"})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Empty(t, res.FailedIndexes)

	n, release, err := pool.Acquire(ctx, "working", false)
	require.NoError(t, err)
	defer release()
	assert.Len(t, n.Indexes(), 2)
}

func TestPool_IdleExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	open, opens := countingOpener()
	pool := newTestPool(t, diskConfig(t), open, 3*time.Second)

	acquire := func() {
		_, release, err := pool.Acquire(ctx, "working", true)
		require.NoError(t, err)
		release()
	}

	// Test: steady use past the TTL keeps the node open
	for range 10 {
		acquire()
		time.Sleep(500 * time.Millisecond)
	}
	assert.Equal(t, int32(1), opens.Load())

	time.Sleep(6 * time.Second)
	acquire()
	assert.Equal(t, int32(2), opens.Load())
}
