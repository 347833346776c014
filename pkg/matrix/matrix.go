package matrix

import (
	"fmt"

	"github.com/polisai/polis-matrix/pkg/domain"
)

// Matrix is a dense N×N matrix of ints stored row-major.
type Matrix struct {
	n     int
	cells []int
}

func newMatrix(n int) *Matrix {
	return &Matrix{n: n, cells: make([]int, n*n)}
}

// FromRows builds a matrix from a complete square row set. It is intended for
// literals in tests and tools; fetched data goes through an Assembler.
func FromRows(rows [][]int) (*Matrix, error) {
	indexed := make([]IndexedRow, len(rows))
	for i, r := range rows {
		indexed[i] = IndexedRow{Index: i, Values: r}
	}
	return Assemble(len(rows), indexed)
}

// Size returns N.
func (m *Matrix) Size() int {
	return m.n
}

// At returns the cell at row i, column j.
func (m *Matrix) At(i, j int) int {
	return m.cells[i*m.n+j]
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []int {
	out := make([]int, m.n)
	copy(out, m.row(i))
	return out
}

// Rows returns a copy of the matrix as a slice of rows.
func (m *Matrix) Rows() [][]int {
	out := make([][]int, m.n)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Equal reports whether both matrices have the same size and cells.
func (m *Matrix) Equal(other *Matrix) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.n != other.n {
		return false
	}
	for i, v := range m.cells {
		if other.cells[i] != v {
			return false
		}
	}
	return true
}

// Each visits every cell in row-major order.
func (m *Matrix) Each(fn func(i, j, v int)) {
	for i := 0; i < m.n; i++ {
		row := m.row(i)
		for j, v := range row {
			fn(i, j, v)
		}
	}
}

func (m *Matrix) String() string {
	return fmt.Sprintf("matrix(%dx%d)", m.n, m.n)
}

func (m *Matrix) row(i int) []int {
	start := i * m.n
	return m.cells[start : start+m.n]
}

func sameSize(a, b *Matrix) error {
	if a == nil || b == nil {
		return fmt.Errorf("%w: nil operand", domain.ErrDimensionMismatch)
	}
	if a.n != b.n {
		return fmt.Errorf("%w: %dx%d and %dx%d", domain.ErrDimensionMismatch, a.n, a.n, b.n, b.n)
	}
	return nil
}
