package depgraph

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSheetCollector(t *testing.T) {
	a := NewAnalyzer(newTestWorkbook(t, 10))
	_ = a.Build(context.Background())

	collector := NewSheetCollector(a)
	assert.Equal(t, 9, testutil.CollectAndCount(collector))

	expected := `
# HELP sheetdeps_sheet_built Whether the dependency graph of a worksheet is queryable (1) or not (0)
# TYPE sheetdeps_sheet_built gauge
sheetdeps_sheet_built{sheet="Empty"} 1
sheetdeps_sheet_built{sheet="Linked"} 0
sheetdeps_sheet_built{sheet="RRSheet"} 1
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), "sheetdeps_sheet_built"))
}

func TestStoreCounters(t *testing.T) {
	folds := testutil.ToFloat64(storeMerges.WithLabelValues(mergeStridedFold))
	splits := testutil.ToFloat64(storeSplits.WithLabelValues("strided"))

	es := NewEdgeStore()
	es.AddBatch(slidingWindowEdges(t, 10))
	es.ClearDependents(rect(t, "B5"))

	assert.Equal(t, folds+9, testutil.ToFloat64(storeMerges.WithLabelValues(mergeStridedFold)))
	assert.Equal(t, splits+1, testutil.ToFloat64(storeSplits.WithLabelValues("strided")))
}
