package matrix

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/polisai/polis-matrix/pkg/domain"
)

// IndexedRow pairs a row index with its values.
type IndexedRow struct {
	Index  int
	Values []int
}

// Assembler collects rows into a matrix keyed by row index. Set is safe for
// concurrent use as long as Matrix is only called after every writer has
// returned.
type Assembler struct {
	n       int
	cells   []int
	written []atomic.Bool

	mu         sync.Mutex
	duplicates []int
	outOfRange []int
}

// NewAssembler prepares an empty n×n assembly.
func NewAssembler(n int) *Assembler {
	return &Assembler{
		n:       n,
		cells:   make([]int, n*n),
		written: make([]atomic.Bool, n),
	}
}

// Size returns N.
func (a *Assembler) Size() int {
	return a.n
}

// Set writes row i. A row of the wrong length is rejected with
// ErrDimensionMismatch; an out-of-range or already-written index is recorded
// and reported by Matrix.
func (a *Assembler) Set(i int, values []int) error {
	if i < 0 || i >= a.n {
		a.record(&a.outOfRange, i)
		return &domain.IncompleteAssemblyError{Size: a.n, OutOfRange: []int{i}}
	}
	if len(values) != a.n {
		return fmt.Errorf("%w: row %d has %d values, want %d", domain.ErrDimensionMismatch, i, len(values), a.n)
	}
	if !a.written[i].CompareAndSwap(false, true) {
		a.record(&a.duplicates, i)
		return &domain.IncompleteAssemblyError{Size: a.n, Duplicates: []int{i}}
	}
	copy(a.cells[i*a.n:(i+1)*a.n], values)
	return nil
}

// Matrix returns the assembled matrix, or an IncompleteAssemblyError when any
// index is missing or was written more than once. The assembler must not be
// reused afterwards.
func (a *Assembler) Matrix() (*Matrix, error) {
	var missing []int
	for i := range a.written {
		if !a.written[i].Load() {
			missing = append(missing, i)
		}
	}

	a.mu.Lock()
	dups := uniqueSorted(a.duplicates)
	oor := uniqueSorted(a.outOfRange)
	a.mu.Unlock()

	if len(missing) > 0 || len(dups) > 0 || len(oor) > 0 {
		return nil, &domain.IncompleteAssemblyError{
			Size:       a.n,
			Missing:    missing,
			Duplicates: dups,
			OutOfRange: oor,
		}
	}
	return &Matrix{n: a.n, cells: a.cells}, nil
}

func (a *Assembler) record(dst *[]int, i int) {
	a.mu.Lock()
	*dst = append(*dst, i)
	a.mu.Unlock()
}

// Assemble builds an n×n matrix from a full row set. Every index in [0, n)
// must appear exactly once.
func Assemble(n int, rows []IndexedRow) (*Matrix, error) {
	a := NewAssembler(n)
	for _, r := range rows {
		if err := a.Set(r.Index, r.Values); err != nil && !isAssemblyErr(err) {
			return nil, err
		}
	}
	return a.Matrix()
}

func isAssemblyErr(err error) bool {
	_, ok := err.(*domain.IncompleteAssemblyError)
	return ok
}

func uniqueSorted(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
