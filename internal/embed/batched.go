package embed

import (
	"context"
	"fmt"
)

// BatchProgress reports embedding progress for real-time feedback.
type BatchProgress struct {
	BatchIndex   int // Current batch number (1-indexed)
	TotalBatches int // Total number of batches
	Processed    int // Number of texts processed so far
	Total        int // Total number of texts to process
}

// EmbedWithProgress embeds texts in batches with progress feedback via channel.
//
// Batches are processed sequentially; after each one a BatchProgress is
// sent on progressCh when it is non-nil. Embeddings are returned in input
// order. A non-positive batchSize embeds everything in one call.
//
// Example usage:
//
//	progressCh := make(chan embed.BatchProgress, 10)
//	go func() {
//	    for p := range progressCh {
//	        fmt.Printf("Progress: %d/%d\n", p.Processed, p.Total)
//	    }
//	}()
//
//	vectors, err := embed.EmbedWithProgress(ctx, gen, texts, 50, progressCh)
//	close(progressCh)
func EmbedWithProgress(
	ctx context.Context,
	gen Generator,
	texts []string,
	batchSize int,
	progressCh chan<- BatchProgress,
) ([]Embedding, error) {
	total := len(texts)
	if total == 0 {
		return []Embedding{}, nil
	}
	if batchSize <= 0 {
		batchSize = total
	}

	numBatches := (total + batchSize - 1) / batchSize
	results := make([]Embedding, total)

	processed := 0
	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := batchIdx * batchSize
		end := min(start+batchSize, total)

		batch, err := gen.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d failed: %w", batchIdx+1, numBatches, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("batch %d/%d returned %d embeddings for %d texts", batchIdx+1, numBatches, len(batch), end-start)
		}
		copy(results[start:end], batch)

		processed += end - start
		if progressCh != nil {
			progressCh <- BatchProgress{
				BatchIndex:   batchIdx + 1,
				TotalBatches: numBatches,
				Processed:    processed,
				Total:        total,
			}
		}
	}

	return results, nil
}
