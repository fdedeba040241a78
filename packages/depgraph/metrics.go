package depgraph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeMerges counts records saved by compression.
	// Labels: kind (contiguous, strided_fold, strided_extend)
	storeMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheetdeps",
		Subsystem: "store",
		Name:      "merges_total",
		Help:      "Total edge merges performed by the compressor",
	}, []string{"kind"})

	// storeSplits counts records rewritten by ClearDependents.
	// Labels: kind (plain, strided)
	storeSplits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheetdeps",
		Subsystem: "store",
		Name:      "splits_total",
		Help:      "Total records split or removed while clearing dependents",
	}, []string{"kind"})

	// builderDroppedRefs counts references skipped while building a sheet.
	// Labels: reason (incomplete_range, missing_cell, unparseable)
	builderDroppedRefs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheetdeps",
		Subsystem: "builder",
		Name:      "dropped_refs_total",
		Help:      "Total formula references dropped by the builder",
	}, []string{"reason"})

	// builderAborts counts sheet builds aborted by an unsupported reference.
	builderAborts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sheetdeps",
		Subsystem: "builder",
		Name:      "aborts_total",
		Help:      "Total sheet builds aborted by cross-sheet references",
	})
)

const (
	mergeContiguous    = "contiguous"
	mergeStridedFold   = "strided_fold"
	mergeStridedExtend = "strided_extend"

	dropIncompleteRange = "incomplete_range"
	dropMissingCell     = "missing_cell"
	dropUnparseable     = "unparseable"
)

var (
	sheetRecordsDesc = prometheus.NewDesc(
		"sheetdeps_sheet_records",
		"Stored records in the dependency graph of a worksheet",
		[]string{"sheet"}, nil,
	)
	sheetInstancesDesc = prometheus.NewDesc(
		"sheetdeps_sheet_instances",
		"Record instances (strided records expanded) of a worksheet",
		[]string{"sheet"}, nil,
	)
	sheetBuiltDesc = prometheus.NewDesc(
		"sheetdeps_sheet_built",
		"Whether the dependency graph of a worksheet is queryable (1) or not (0)",
		[]string{"sheet"}, nil,
	)
)

// SheetCollector exports per-sheet gauges of an Analyzer. register it with
// prometheus.MustRegister or a custom registry.
type SheetCollector struct {
	analyzer *Analyzer
}

// NewSheetCollector creates a collector reading from the analyzer
func NewSheetCollector(a *Analyzer) *SheetCollector {
	return &SheetCollector{analyzer: a}
}

func (c *SheetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sheetRecordsDesc
	ch <- sheetInstancesDesc
	ch <- sheetBuiltDesc
}

func (c *SheetCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.analyzer.Stats() {
		built := 0.0
		if s.Built {
			built = 1
		}
		ch <- prometheus.MustNewConstMetric(sheetBuiltDesc, prometheus.GaugeValue, built, s.Sheet)
		ch <- prometheus.MustNewConstMetric(sheetRecordsDesc, prometheus.GaugeValue, float64(s.Store.Records), s.Sheet)
		ch <- prometheus.MustNewConstMetric(sheetInstancesDesc, prometheus.GaugeValue, float64(s.Store.Instances), s.Sheet)
	}
}
