package depgraph

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogtb/go-sheetdeps/internal/ctxlog"
)

// SheetTestCase builds a worksheet cell by cell, then builds its store
type SheetTestCase struct {
	t         *testing.T
	workbook  *Workbook
	worksheet *Worksheet
	store     *EdgeStore
	report    BuildReport
	err       error
}

func NewSheetTestCase(t *testing.T, name string) *SheetTestCase {
	t.Helper()
	wb := NewWorkbook()
	ws, err := wb.AddWorksheet(name)
	require.NoError(t, err)
	return &SheetTestCase{t: t, workbook: wb, worksheet: ws}
}

// Set writes a formula when value starts with "=", a plain value otherwise
func (tc *SheetTestCase) Set(address string, value string) *SheetTestCase {
	tc.t.Helper()
	r, err := ParseRef(tc.worksheet.ID(), address)
	require.NoError(tc.t, err)
	for cell := range r.Cells() {
		if len(value) > 0 && value[0] == '=' {
			tc.worksheet.SetCell(cell.StartRow, cell.StartColumn, "", value)
		} else {
			tc.worksheet.SetCell(cell.StartRow, cell.StartColumn, value, "")
		}
	}
	return tc
}

func (tc *SheetTestCase) Build(opts ...StoreOption) *SheetTestCase {
	tc.t.Helper()
	tc.store, tc.report, tc.err = NewSheetDependencyBuilder(opts...).Build(context.Background(), tc.worksheet)
	return tc
}

func (tc *SheetTestCase) ExpectDependents(address string, want ...string) *SheetTestCase {
	tc.t.Helper()
	require.NoError(tc.t, tc.err)
	r, err := ParseRef(tc.worksheet.ID(), address)
	require.NoError(tc.t, err)
	got := refStrings(tc.store.GetDependents(r))
	if len(want) == 0 {
		assert.Empty(tc.t, got, "dependents of %s", address)
		return tc
	}
	assert.Equal(tc.t, want, got, "dependents of %s", address)
	return tc
}

func (tc *SheetTestCase) ExpectPrecedents(address string, want ...string) *SheetTestCase {
	tc.t.Helper()
	require.NoError(tc.t, tc.err)
	r, err := ParseRef(tc.worksheet.ID(), address)
	require.NoError(tc.t, err)
	got := refStrings(tc.store.GetPrecedents(r))
	if len(want) == 0 {
		assert.Empty(tc.t, got, "precedents of %s", address)
		return tc
	}
	assert.Equal(tc.t, want, got, "precedents of %s", address)
	return tc
}

func TestBuilder_SlidingWindow(t *testing.T) {
	tc := NewSheetTestCase(t, "RRSheet").Set("A1:A1000", "1")
	for i := 1; i <= 999; i++ {
		tc.Set(fmt.Sprintf("B%d", i), fmt.Sprintf("=SUM(A%d:A%d)", i, i+1))
	}
	tc.Build().
		ExpectDependents("A2", "B1:B2").
		ExpectDependents("A1", "B1").
		ExpectDependents("A1000", "B999").
		ExpectPrecedents("B10", "A10:A11")

	assert.Equal(t, 1, tc.store.Len())
	assert.Equal(t, 999, tc.report.FormulaCells)
	assert.Equal(t, 999, tc.report.Edges)
	assert.Equal(t, "records=1 edges=1998 vertices=1999 ratio=1998.00", tc.store.CompressInfo())
}

func TestBuilder_DropsIncompleteReferences(t *testing.T) {
	tc := NewSheetTestCase(t, "Sheet1").
		Set("A1:A3", "1").
		Set("B1", "=SUM(A1:A4)"). // A4 missing
		Set("B2", "=A9+A1").      // A9 missing
		Set("B3", "=Totals*A2").  // named range
		Set("B4", "=A:A").        // whole column
		Build()

	require.NoError(t, tc.err)
	tc.ExpectPrecedents("B1").
		ExpectPrecedents("B2", "A1").
		ExpectPrecedents("B3", "A2").
		ExpectPrecedents("B4")

	assert.Equal(t, 1, tc.report.Dropped[dropIncompleteRange])
	assert.Equal(t, 1, tc.report.Dropped[dropMissingCell])
	assert.Equal(t, 2, tc.report.Dropped[dropUnparseable])
}

func TestBuilder_CrossSheetAborts(t *testing.T) {
	tc := NewSheetTestCase(t, "Sheet1").
		Set("A1", "1").
		Set("B1", "=A1").
		Set("B2", "=Sheet2!A1+A1").
		Build()

	require.Error(t, tc.err)
	assert.ErrorIs(t, tc.err, ErrUnsupportedReference)
	assert.Equal(t, Unimplemented, CodeOf(tc.err))
	assert.Nil(t, tc.store)
}

func TestBuilder_SameSheetQualifierAllowed(t *testing.T) {
	NewSheetTestCase(t, "Data").
		Set("A1:A2", "1").
		Set("B1", "=data!A1+'Data'!A2").
		Build().
		ExpectPrecedents("B1", "A1:A2")
}

func TestBuilder_QuotedSheetNames(t *testing.T) {
	t.Run("other sheet aborts", func(t *testing.T) {
		for _, formula := range []string{
			"='My Sheet'!A1+A1",
			"=SUM('Q1 Data'!A1:A3)+A1",
			"=SUM('Q1 Data'!A:A)+A1",
			"=Other!A:A+A1",
		} {
			tc := NewSheetTestCase(t, "Sheet1").
				Set("A1:A3", "1").
				Set("B1", formula).
				Build()

			require.Error(t, tc.err, formula)
			assert.ErrorIs(t, tc.err, ErrUnsupportedReference, formula)
			assert.Nil(t, tc.store, formula)
		}
	})

	t.Run("same sheet kept", func(t *testing.T) {
		NewSheetTestCase(t, "My Sheet").
			Set("A1:A3", "1").
			Set("B1", "='My Sheet'!A1+'my sheet'!A2").
			Set("B2", "=SUM('My Sheet'!A1:A3)").
			Build().
			ExpectPrecedents("B1", "A1:A2").
			ExpectPrecedents("B2", "A1:A3")
	})

	t.Run("escaped apostrophe", func(t *testing.T) {
		NewSheetTestCase(t, "It's").
			Set("A1", "1").
			Set("B1", "='It''s'!A1*2").
			Build().
			ExpectDependents("A1", "B1")
	})

	t.Run("same sheet unparseable dropped", func(t *testing.T) {
		tc := NewSheetTestCase(t, "My Sheet").
			Set("A1", "1").
			Set("B1", "=SUM('My Sheet'!A:A)+A1").
			Build().
			ExpectPrecedents("B1", "A1")
		assert.Equal(t, 1, tc.report.Dropped[dropUnparseable])
	})
}

func TestBuilder_DeduplicatesAndMergesAbsolute(t *testing.T) {
	tc := NewSheetTestCase(t, "Sheet1").
		Set("A1", "100").
		Set("B1:B20", "=$A$1*2+A1").
		Build().
		ExpectDependents("A1", "B1:B20").
		ExpectPrecedents("B7", "A1")

	assert.Equal(t, 1, tc.store.Len())
}

func TestBuilder_TextAndFunctionsIgnored(t *testing.T) {
	NewSheetTestCase(t, "Sheet1").
		Set("A1:C1", "1").
		Set("D1", `=IF(A1>0,"B1",CONCATENATE(C1,"x"))`).
		Build().
		ExpectPrecedents("D1", "A1", "C1")
}

func TestBuilder_CancelledContext(t *testing.T) {
	tc := NewSheetTestCase(t, "Sheet1").Set("A1", "1").Set("B1", "=A1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, _, err := NewSheetDependencyBuilder().Build(ctx, tc.worksheet)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store)
}

func TestBuilder_LogsDroppedReferences(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	tc := NewSheetTestCase(t, "Sheet1").Set("B1", "=A1")
	_, report, err := NewSheetDependencyBuilder().Build(ctx, tc.worksheet)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dropped[dropMissingCell])
	assert.Contains(t, buf.String(), "dropped reference")
	assert.Contains(t, buf.String(), "sheet=Sheet1")
}

func TestBuilder_Precedents(t *testing.T) {
	tc := NewSheetTestCase(t, "Sheet1").Set("A1:A5", "1")

	cell := Cell{Row: 0, Col: 1, Formula: "=SUM(A1:A3)+A5+A1", FormulaID: 1}
	precedents, err := NewSheetDependencyBuilder().Precedents(context.Background(), tc.worksheet, cell)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1:A3", "A5", "A1"}, refStrings(precedents))

	precedents, err = NewSheetDependencyBuilder().Precedents(context.Background(), tc.worksheet, Cell{Value: "1"})
	require.NoError(t, err)
	assert.Empty(t, precedents)
}
