package cache

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// EvictionPolicy controls what gets evicted from the embeddings cache.
type EvictionPolicy struct {
	MaxAgeDays int // Delete entries older than this (default: 90)
}

// DefaultEvictionPolicy returns the default eviction policy.
func DefaultEvictionPolicy() EvictionPolicy {
	return EvictionPolicy{MaxAgeDays: 90}
}

// EvictionResult contains statistics about an eviction run.
type EvictionResult struct {
	Evicted   int64         `json:"evicted" yaml:"evicted"`
	Remaining int           `json:"remaining" yaml:"remaining"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Evict deletes entries written before the policy's cutoff and drops the
// in-memory layer so evicted vectors are not served from it.
func (s *EmbeddingsStore) Evict(ctx context.Context, policy EvictionPolicy) (*EvictionResult, error) {
	start := time.Now()
	if policy.MaxAgeDays <= 0 {
		policy = DefaultEvictionPolicy()
	}

	cutoff := s.now().Add(-time.Duration(policy.MaxAgeDays) * 24 * time.Hour)
	res, err := s.dialect.Builder().
		Delete(table).
		Where(sq.Lt{"timestamp": cutoff.UTC().Format(timestampLayout)}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to evict embeddings cache: %w", err)
	}
	evicted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to evict embeddings cache: %w", err)
	}
	s.l1.Clear()

	remaining, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &EvictionResult{
		Evicted:   evicted,
		Remaining: remaining,
		Duration:  time.Since(start),
	}, nil
}
