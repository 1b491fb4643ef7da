package node

import (
	"context"
	"fmt"
	"time"

	"github.com/mvp-joe/kernel-memory/internal/search"
)

// reindexPageSize is the number of records read from the content index per
// page while rebuilding.
const reindexPageSize = 100

// ReindexStats summarizes a rebuild.
type ReindexStats struct {
	NodeID        string        `json:"nodeId" yaml:"nodeId"`
	Records       int           `json:"records" yaml:"records"`
	Indexes       []string      `json:"indexes" yaml:"indexes"`
	FailedIndexes []string      `json:"failedIndexes,omitempty" yaml:"failedIndexes,omitempty"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

// Reindex rebuilds every search index from the content index. Indexes that
// implement search.BatchIndexer receive a page at a time.
func (n *Node) Reindex(ctx context.Context, progress ProgressReporter) (*ReindexStats, error) {
	if !n.Writable() {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, n.cfg.ID)
	}
	if progress == nil {
		progress = NoOpProgressReporter{}
	}

	start := time.Now()
	total, err := n.content.Count(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ReindexStats{NodeID: n.cfg.ID, Records: total}
	for _, idx := range n.indexes {
		stats.Indexes = append(stats.Indexes, idx.ID())

		if err := n.rebuild(ctx, idx, total, progress); err != nil {
			if idx.Required() || ctx.Err() != nil {
				return nil, fmt.Errorf("failed to rebuild index %s: %w", idx.ID(), err)
			}
			n.logger.Warn().Err(err).Str("index", idx.ID()).Msg("optional index rebuild failed")
			stats.FailedIndexes = append(stats.FailedIndexes, idx.ID())
		}
	}

	stats.Duration = time.Since(start)
	n.logger.Info().
		Int("records", stats.Records).
		Int("indexes", len(stats.Indexes)).
		Dur("took", stats.Duration).
		Msg("reindex complete")
	return stats, nil
}

func (n *Node) rebuild(ctx context.Context, idx search.Index, total int, progress ProgressReporter) error {
	start := time.Now()
	progress.OnIndexStart(idx.ID(), total)

	batcher, batched := idx.(search.BatchIndexer)
	processed := 0
	for skip := 0; ; skip += reindexPageSize {
		page, err := n.content.List(ctx, skip, reindexPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		if batched {
			if err := batcher.UpsertBatch(ctx, page); err != nil {
				return err
			}
		} else {
			for _, doc := range page {
				if err := idx.Upsert(ctx, doc); err != nil {
					return fmt.Errorf("record %s: %w", doc.ID, err)
				}
			}
		}

		processed += len(page)
		progress.OnRecordsIndexed(idx.ID(), processed)
		if len(page) < reindexPageSize {
			break
		}
	}

	progress.OnIndexComplete(idx.ID(), processed, time.Since(start))
	return nil
}
