package depgraph

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestWorkbook returns a workbook with a sliding window sheet of n
// formulas, a small sheet with a cross-sheet reference and an empty sheet
func newTestWorkbook(t *testing.T, n int) *Workbook {
	t.Helper()
	wb := NewWorkbook()

	rr, err := wb.AddWorksheet("RRSheet")
	require.NoError(t, err)
	for row := uint32(0); row <= uint32(n); row++ {
		rr.SetCell(row, 0, "1", "")
	}
	for i := 1; i <= n; i++ {
		rr.SetCell(uint32(i-1), 1, "", fmt.Sprintf("=SUM(A%d:A%d)", i, i+1))
	}

	linked, err := wb.AddWorksheet("Linked")
	require.NoError(t, err)
	linked.SetCell(0, 0, "1", "")
	linked.SetCell(0, 1, "", "=RRSheet!A1+A1")

	_, err = wb.AddWorksheet("Empty")
	require.NoError(t, err)
	return wb
}

func TestAnalyzer_BuildIsolatesFailures(t *testing.T) {
	a := NewAnalyzer(newTestWorkbook(t, 999), WithWorkers(2))
	err := a.Build(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedReference)
	assert.Contains(t, err.Error(), `worksheet "Linked"`)

	dependents, err := a.DependentsOf("RRSheet", "A2")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1:B2"}, refStrings(dependents))

	_, err = a.DependentsOf("Linked", "A1")
	assert.ErrorIs(t, err, ErrSheetNotBuilt)
	assert.ErrorIs(t, err, ErrUnsupportedReference)
	assert.Equal(t, FailedPrecondition, CodeOf(err))

	info, err := a.CompressInfo("Empty")
	require.NoError(t, err)
	assert.Equal(t, "records=0 edges=0 vertices=0 ratio=0.00", info)
}

func TestAnalyzer_LookupErrors(t *testing.T) {
	a := NewAnalyzer(newTestWorkbook(t, 3))

	_, err := a.Dependents("RRSheet", NewCell(0, 0, 0))
	assert.ErrorIs(t, err, ErrSheetNotBuilt, "nothing is queryable before Build")

	_ = a.Build(context.Background())

	_, err = a.Dependents("Nope", NewCell(0, 0, 0))
	assert.ErrorIs(t, err, ErrSheetNotFound)
	assert.Equal(t, NotFound, CodeOf(err))

	_, err = a.DependentsOf("RRSheet", "not an address")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = a.Store("Linked")
	assert.ErrorIs(t, err, ErrSheetNotBuilt)
}

func TestAnalyzer_Stats(t *testing.T) {
	a := NewAnalyzer(newTestWorkbook(t, 10))
	_ = a.Build(context.Background())

	stats := a.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, []string{"RRSheet", "Linked", "Empty"}, a.SheetNames())

	assert.Equal(t, "RRSheet", stats[0].Sheet)
	assert.True(t, stats[0].Built)
	assert.Equal(t, 1, stats[0].Store.Records)
	assert.Equal(t, uint64(10), stats[0].Store.Instances)
	assert.Equal(t, 10, stats[0].Report.FormulaCells)

	assert.False(t, stats[1].Built)
	assert.ErrorIs(t, stats[1].Err, ErrUnsupportedReference)

	assert.True(t, stats[2].Built)
	assert.NoError(t, stats[2].Err)
}

func TestAnalyzer_SetFormulaUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	a := NewAnalyzer(newTestWorkbook(t, 20))
	_ = a.Build(ctx)

	store, err := a.Store("RRSheet")
	require.NoError(t, err)

	require.NoError(t, a.SetFormula(ctx, "RRSheet", 4, 1, "=A1+A2"))

	same, err := a.Store("RRSheet")
	require.NoError(t, err)
	assert.Same(t, store, same, "editing an existing cell keeps the store")

	dependents, err := a.DependentsOf("RRSheet", "A1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1", "B5"}, refStrings(dependents))

	precedents, err := a.Precedents("RRSheet", NewCell(0, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"A1:A2"}, refStrings(precedents))

	dependents, err = a.DependentsOf("RRSheet", "A6")
	require.NoError(t, err)
	assert.Equal(t, []string{"B6"}, refStrings(dependents))
}

func TestAnalyzer_NewCellCompletesRange(t *testing.T) {
	ctx := context.Background()
	wb := NewWorkbook()
	ws, err := wb.AddWorksheet("Sheet1")
	require.NoError(t, err)
	ws.SetCell(0, 0, "1", "")
	ws.SetCell(1, 0, "2", "")
	ws.SetCell(0, 1, "", "=SUM(A1:A3)")

	a := NewAnalyzer(wb)
	require.NoError(t, a.Build(ctx))

	dependents, err := a.DependentsOf("Sheet1", "A1")
	require.NoError(t, err)
	assert.Empty(t, dependents, "A1:A3 is incomplete")

	require.NoError(t, a.SetValue(ctx, "Sheet1", 2, 0, "3"))
	dependents, err = a.DependentsOf("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, refStrings(dependents))

	require.NoError(t, a.RemoveCell(ctx, "Sheet1", 1, 0))
	dependents, err = a.DependentsOf("Sheet1", "A3")
	require.NoError(t, err)
	assert.Empty(t, dependents)

	require.NoError(t, a.RemoveCell(ctx, "Sheet1", 9, 9), "removing a missing cell is a no-op")
}

func TestAnalyzer_SetValueClearsFormula(t *testing.T) {
	ctx := context.Background()
	a := NewAnalyzer(newTestWorkbook(t, 5))
	_ = a.Build(ctx)

	require.NoError(t, a.SetValue(ctx, "RRSheet", 0, 1, "7"))
	dependents, err := a.DependentsOf("RRSheet", "A1")
	require.NoError(t, err)
	assert.Empty(t, dependents)
}

func TestAnalyzer_EditRecoversFailedSheet(t *testing.T) {
	ctx := context.Background()
	a := NewAnalyzer(newTestWorkbook(t, 3))
	_ = a.Build(ctx)

	_, err := a.Store("Linked")
	require.ErrorIs(t, err, ErrSheetNotBuilt)

	require.NoError(t, a.SetFormula(ctx, "Linked", 0, 1, "=A1*2"))
	dependents, err := a.DependentsOf("Linked", "A1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, refStrings(dependents))

	err = a.SetFormula(ctx, "Linked", 0, 1, "=Other!A1")
	assert.ErrorIs(t, err, ErrUnsupportedReference)
	_, err = a.DependentsOf("Linked", "A1")
	assert.ErrorIs(t, err, ErrSheetNotBuilt)
}

func TestAnalyzer_AddWorksheet(t *testing.T) {
	ctx := context.Background()
	a := NewAnalyzer(nil)
	require.NoError(t, a.Build(ctx))

	require.NoError(t, a.AddWorksheet(ctx, "Fresh"))
	require.NoError(t, a.SetValue(ctx, "Fresh", 0, 0, "1"))
	require.NoError(t, a.SetFormula(ctx, "Fresh", 0, 1, "=A1"))

	dependents, err := a.DependentsOf("fresh", "A1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, refStrings(dependents))

	assert.Equal(t, AlreadyExists, CodeOf(a.AddWorksheet(ctx, "FRESH")))
}

func TestAnalyzer_CancelledBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(newTestWorkbook(t, 10))
	err := a.Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer_ConcurrentQueriesDuringEdits(t *testing.T) {
	ctx := context.Background()
	a := NewAnalyzer(newTestWorkbook(t, 200), WithWorkers(4))
	_ = a.Build(ctx)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				dependents, err := a.DependentsOf("RRSheet", fmt.Sprintf("A%d", i%200+2))
				if !assert.NoError(t, err) {
					return
				}
				assert.NotEmpty(t, dependents)
				_ = a.Stats()
			}
		}()
	}

	for i := 0; i < 50; i++ {
		row := uint32(i * 3)
		require.NoError(t, a.SetFormula(ctx, "RRSheet", row, 1, fmt.Sprintf("=A%d+A%d", row+1, row+2)))
	}
	wg.Wait()

	dependents, err := a.DependentsOf("RRSheet", "A2")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1:B2"}, refStrings(dependents))
}
