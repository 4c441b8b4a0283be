package graph

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BuildParallel adds every vector in vecs to the graph using a bounded
// worker pool, returning the assigned ordinals in input order. Concurrent
// inserts race on the same adjacency CAS loops that AddGraphNode already
// uses for safety, so no external locking is needed here; workers just
// need a ceiling on fan-out.
func (b *Builder) BuildParallel(ctx context.Context, vecs [][]float32, workers int) ([]uint32, error) {
	if workers < 1 {
		workers = 1
	}
	ordinals := make([]uint32, len(vecs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, v := range vecs {
		i, v := i, v
		g.Go(func() error {
			ordinal, err := b.AddGraphNode(gctx, v)
			if err != nil {
				return err
			}
			ordinals[i] = ordinal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ordinals, nil
}
