package matrix

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/polis-matrix/pkg/domain"
)

func TestAssembler_ConcurrentDistinctRows(t *testing.T) {
	const n = 64
	a := NewAssembler(n)

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row := make([]int, n)
			for j := range row {
				row[j] = i*n + j
			}
			assert.NoError(t, a.Set(i, row))
		}()
	}
	wg.Wait()

	m, err := a.Matrix()
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			require.Equal(t, i*n+j, m.At(i, j))
		}
	}
}

func TestAssembler_RejectsDuplicate(t *testing.T) {
	a := NewAssembler(2)
	require.NoError(t, a.Set(0, []int{1, 2}))
	require.NoError(t, a.Set(1, []int{3, 4}))

	err := a.Set(1, []int{5, 6})
	require.ErrorIs(t, err, domain.ErrIncompleteAssembly)

	_, err = a.Matrix()
	var assemblyErr *domain.IncompleteAssemblyError
	require.True(t, errors.As(err, &assemblyErr))
	assert.Equal(t, []int{1}, assemblyErr.Duplicates)
	assert.Empty(t, assemblyErr.Missing)
}

func TestAssembler_RejectsMissing(t *testing.T) {
	a := NewAssembler(3)
	require.NoError(t, a.Set(1, []int{1, 2, 3}))

	_, err := a.Matrix()
	var assemblyErr *domain.IncompleteAssemblyError
	require.True(t, errors.As(err, &assemblyErr))
	assert.Equal(t, []int{0, 2}, assemblyErr.Missing)
}

func TestAssembler_RejectsOutOfRangeAndWrongLength(t *testing.T) {
	a := NewAssembler(2)
	assert.ErrorIs(t, a.Set(2, []int{1, 2}), domain.ErrIncompleteAssembly)
	assert.ErrorIs(t, a.Set(-1, []int{1, 2}), domain.ErrIncompleteAssembly)
	assert.ErrorIs(t, a.Set(0, []int{1}), domain.ErrDimensionMismatch)

	_, err := a.Matrix()
	var assemblyErr *domain.IncompleteAssemblyError
	require.True(t, errors.As(err, &assemblyErr))
	assert.Equal(t, []int{-1, 2}, assemblyErr.OutOfRange)
	assert.Equal(t, []int{0, 1}, assemblyErr.Missing)
}

func TestAssemble_RowOrderRestored(t *testing.T) {
	m, err := Assemble(3, []IndexedRow{
		{Index: 2, Values: []int{7, 8, 9}},
		{Index: 0, Values: []int{1, 2, 3}},
		{Index: 1, Values: []int{4, 5, 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, m.Rows())
}

// Property: dropping or duplicating any index is rejected whatever the row content.
func TestAssembleRejectsBrokenIndexSets(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		rows := make([]IndexedRow, n)
		for i := range rows {
			rows[i] = IndexedRow{Index: i, Values: rapid.SliceOfN(rapid.Int(), n, n).Draw(t, "values")}
		}

		victim := rapid.IntRange(0, n-1).Draw(t, "victim")
		duplicate := rapid.Bool().Draw(t, "duplicate")

		var broken []IndexedRow
		if duplicate {
			broken = append(append(broken, rows...), IndexedRow{
				Index:  victim,
				Values: rapid.SliceOfN(rapid.Int(), n, n).Draw(t, "dupValues"),
			})
		} else {
			broken = append(append(broken, rows[:victim]...), rows[victim+1:]...)
		}
		perm := rapid.Permutation(broken).Draw(t, "order")

		m, err := Assemble(n, perm)
		if m != nil || !errors.Is(err, domain.ErrIncompleteAssembly) {
			t.Fatalf("expected incomplete assembly error, got matrix=%v err=%v", m, err)
		}
		var assemblyErr *domain.IncompleteAssemblyError
		if !errors.As(err, &assemblyErr) {
			t.Fatalf("expected *IncompleteAssemblyError, got %T", err)
		}
		if duplicate && (len(assemblyErr.Duplicates) != 1 || assemblyErr.Duplicates[0] != victim) {
			t.Fatalf("duplicates = %v, want [%d]", assemblyErr.Duplicates, victim)
		}
		if !duplicate && (len(assemblyErr.Missing) != 1 || assemblyErr.Missing[0] != victim) {
			t.Fatalf("missing = %v, want [%d]", assemblyErr.Missing, victim)
		}
	})
}
