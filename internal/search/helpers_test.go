package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/kernel-memory/internal/storage"
)

func doc(id, content string) *storage.Content {
	return &storage.Content{ID: id, Content: content}
}

func indexAll(t *testing.T, idx Index, docs ...*storage.Content) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, idx.Upsert(context.Background(), d))
	}
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func assertRelevanceRange(t *testing.T, hits []Hit) {
	t.Helper()
	for _, h := range hits {
		require.GreaterOrEqual(t, h.Relevance, 0.0, "hit %s", h.ID)
		require.LessOrEqual(t, h.Relevance, 1.0, "hit %s", h.ID)
	}
}
