package matrix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/polis-matrix/pkg/domain"
)

// genMatrix draws an n×n matrix with cells small enough that products never
// overflow for the sizes used here.
func genMatrix(t *rapid.T, n int, label string) *Matrix {
	rows := make([][]int, n)
	for i := range rows {
		rows[i] = rapid.SliceOfN(rapid.IntRange(-1000, 1000), n, n).Draw(t, label)
	}
	m, err := FromRows(rows)
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	return m
}

func TestMultiply_KnownProduct(t *testing.T) {
	a, err := FromRows([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)
	b, err := FromRows([][]int{{5, 6}, {7, 8}})
	require.NoError(t, err)

	c, err := Multiply(context.Background(), a, b, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{19, 22}, {43, 50}}, c.Rows())
}

func TestMultiply_NegativeValues(t *testing.T) {
	a, err := FromRows([][]int{{-1, 0}, {2, -3}})
	require.NoError(t, err)
	b, err := FromRows([][]int{{4, -5}, {-6, 7}})
	require.NoError(t, err)

	c, err := Multiply(context.Background(), a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{-4, 5}, {26, -31}}, c.Rows())
}

func TestMultiply_DimensionMismatch(t *testing.T) {
	a, err := FromRows([][]int{{1}})
	require.NoError(t, err)
	b, err := FromRows([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)

	_, err = Multiply(context.Background(), a, b, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = Multiply(context.Background(), nil, b, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestMultiply_Cancelled(t *testing.T) {
	a, err := FromRows([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := Multiply(ctx, a, a, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, c)
}

func TestMultiply_EmptyMatrix(t *testing.T) {
	a, err := FromRows(nil)
	require.NoError(t, err)

	c, err := Multiply(context.Background(), a, a, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Size())
}

// Property: every cell equals the inner product of its row and column.
func TestMultiplyMatchesDefinition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		a := genMatrix(t, n, "a")
		b := genMatrix(t, n, "b")
		workers := rapid.IntRange(0, 16).Draw(t, "workers")

		c, err := Multiply(context.Background(), a, b, workers)
		if err != nil {
			t.Fatalf("Multiply: %v", err)
		}

		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				want := 0
				for k := 0; k < n; k++ {
					want += a.At(i, k) * b.At(k, j)
				}
				if got := c.At(i, j); got != want {
					t.Fatalf("C[%d][%d] = %d, want %d", i, j, got, want)
				}
			}
		}
	})
}

// Property: the partitioning across workers never changes the result.
func TestMultiplyIndependentOfWorkerCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(t, "n")
		a := genMatrix(t, n, "a")
		b := genMatrix(t, n, "b")

		serial, err := Multiply(context.Background(), a, b, 1)
		if err != nil {
			t.Fatalf("Multiply serial: %v", err)
		}
		workers := rapid.IntRange(2, 32).Draw(t, "workers")
		parallel, err := Multiply(context.Background(), a, b, workers)
		if err != nil {
			t.Fatalf("Multiply parallel: %v", err)
		}
		if !serial.Equal(parallel) {
			t.Fatalf("result differs between 1 and %d workers", workers)
		}
	})
}

func TestMatrixAccessorsCopy(t *testing.T) {
	m, err := FromRows([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)

	row := m.Row(0)
	row[0] = 99
	assert.Equal(t, 1, m.At(0, 0))

	var visited []int
	m.Each(func(_, _, v int) { visited = append(visited, v) })
	assert.Equal(t, []int{1, 2, 3, 4}, visited)
	assert.Equal(t, "matrix(2x2)", m.String())
}
