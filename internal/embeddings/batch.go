package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// embedInBatches splits texts into requests of at most size texts and runs
// up to limit of them at once. Results keep the input order.
func embedInBatches(ctx context.Context, texts []string, size, limit int, embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 || len(texts) <= size {
		return embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		g.Go(func() error {
			vecs, err := embed(ctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
