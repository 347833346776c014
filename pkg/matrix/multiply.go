package matrix

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Multiply returns a×b. Output rows are split across workers goroutines
// (GOMAXPROCS when workers <= 0); worker w owns rows w, w+workers, ... and
// nothing else. a and b are only read. Each cell sums k = 0..N-1 ascending,
// so the result is identical for every worker count.
func Multiply(ctx context.Context, a, b *Matrix, workers int) (*Matrix, error) {
	if err := sameSize(a, b); err != nil {
		return nil, err
	}
	n := a.n
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	c := newMatrix(n)
	if n == 0 {
		return c, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < n; i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				multiplyRow(c.row(i), a.row(i), b.cells, n)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

// multiplyRow computes one output row: out[j] = Σ_k rowA[k] * B[k][j].
func multiplyRow(out, rowA, bCells []int, n int) {
	for j := 0; j < n; j++ {
		acc := 0
		for k := 0; k < n; k++ {
			acc += rowA[k] * bCells[k*n+j]
		}
		out[j] = acc
	}
}
