package lazycell

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Warmer is any cell, regardless of its value type. It exists so a
// heterogeneous set of cells can be pre-initialized together.
type Warmer interface {
	// Warm triggers initialization and reports its outcome, without
	// exposing the value.
	Warm() error
}

// Warm initializes the cell if it is not initialized yet. It is
// exactly Get with the value discarded.
func (c *Cell[T]) Warm() error {
	_, err := c.Get()
	return err
}

// WarmAll initializes the given cells in parallel and returns the
// first error encountered, if any. Cells whose construction has not
// started when an error (or ctx cancellation) arrives are skipped;
// cells already constructing run to completion. A cell that fails
// under WarmAll is in the same state a failed Get would leave it in.
func WarmAll(ctx context.Context, warmers ...Warmer) error {
	if len(warmers) == 0 {
		return nil
	}

	// Bypass errgroup for a single cell.
	if len(warmers) == 1 {
		return warmers[0].Warm()
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range warmers {
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return w.Warm()
		})
	}

	return g.Wait()
}
