// Package batch runs independent per-entity work with bounded parallelism.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is used when a non-positive limit is supplied.
const DefaultLimit = 4

// Each calls fn for every item using at most limit goroutines. A failing item
// never stops the others: its error is handed to onError and counted. Each
// stops scheduling new items once ctx is done and returns ctx.Err().
func Each[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error, onError func(T, error)) (int, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var (
		mu       sync.Mutex
		failures int
		g        errgroup.Group
	)
	g.SetLimit(limit)
	for _, item := range items {
		item := item
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				if onError != nil {
					onError(item, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures, ctx.Err()
}
