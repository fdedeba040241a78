package depgraph

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vogtb/go-sheetdeps/internal/ctxlog"
	"github.com/xuri/efp"
)

// BuilderContext is the worksheet a build runs against. it travels with
// every call so the builder itself holds no per-sheet state.
type BuilderContext struct {
	WorksheetID   uint32
	WorksheetName string
}

// BuildReport summarises one sheet build
type BuildReport struct {
	FormulaCells int            // formula cells visited
	Edges        int            // edges handed to the store
	Dropped      map[string]int // dropped references by reason
}

// SheetDependencyBuilder turns the formulas of a worksheet into an
// EdgeStore. ranges that are not fully populated and references to
// missing cells or names are dropped; a reference to another worksheet
// or workbook aborts the whole sheet.
type SheetDependencyBuilder struct {
	storeOptions []StoreOption
}

// NewSheetDependencyBuilder creates a builder whose stores are created
// with storeOptions
func NewSheetDependencyBuilder(storeOptions ...StoreOption) *SheetDependencyBuilder {
	return &SheetDependencyBuilder{storeOptions: storeOptions}
}

// Build walks the formula cells of ws in row order and returns a store
// holding their dependencies. on error no store is returned, so a sheet
// with an unsupported reference never becomes queryable.
func (b *SheetDependencyBuilder) Build(ctx context.Context, ws *Worksheet) (*EdgeStore, BuildReport, error) {
	bctx := BuilderContext{WorksheetID: ws.ID(), WorksheetName: ws.Name()}
	logger := ctxlog.FromContext(ctx).With("sheet", bctx.WorksheetName)
	report := BuildReport{Dropped: make(map[string]int)}

	edges := make([]Edge, 0, ws.FormulaCount())
	for cell := range ws.FormulaCells() {
		if report.FormulaCells%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
		}
		report.FormulaCells++

		precedents, err := b.precedents(bctx, ws, cell, logger, report.Dropped)
		if err != nil {
			builderAborts.Inc()
			logger.Warn("aborting sheet build", "cell", NewCell(bctx.WorksheetID, cell.Row, cell.Col).String(), "error", err)
			return nil, report, err
		}

		dependent := NewCell(bctx.WorksheetID, cell.Row, cell.Col)
		for _, p := range precedents {
			edges = append(edges, Edge{Precedent: p, Dependent: dependent})
		}
	}

	orderForRuns(edges)
	report.Edges = len(edges)

	opts := append(slices.Clone(b.storeOptions), WithLogger(logger))
	store := NewEdgeStore(opts...)
	store.AddBatch(edges)

	logger.Debug("built sheet dependencies",
		"formula_cells", report.FormulaCells,
		"edges", report.Edges,
		"records", store.Len())
	return store, report, nil
}

// Precedents resolves the references of one formula written at cell on
// ws. the result is deduplicated and keeps the order of first appearance.
func (b *SheetDependencyBuilder) Precedents(ctx context.Context, ws *Worksheet, cell Cell) ([]Ref, error) {
	bctx := BuilderContext{WorksheetID: ws.ID(), WorksheetName: ws.Name()}
	logger := ctxlog.FromContext(ctx).With("sheet", bctx.WorksheetName)
	return b.precedents(bctx, ws, cell, logger, nil)
}

func (b *SheetDependencyBuilder) precedents(bctx BuilderContext, ws *Worksheet, cell Cell, logger *slog.Logger, dropped map[string]int) ([]Ref, error) {
	if !cell.IsFormula() {
		return nil, nil
	}

	parser := NewParser(&ParserContext{
		CurrentWorksheetID:   bctx.WorksheetID,
		CurrentWorksheetName: bctx.WorksheetName,
	})
	drop := func(reason, operand string, err error) {
		builderDroppedRefs.WithLabelValues(reason).Inc()
		if dropped != nil {
			dropped[reason]++
		}
		logger.Debug("dropped reference",
			"cell", NewCell(bctx.WorksheetID, cell.Row, cell.Col).String(),
			"operand", operand,
			"reason", reason,
			"error", err)
	}

	unsupported := func(operand string) error {
		return wrapError(Unimplemented, ErrUnsupportedReference,
			fmt.Sprintf("%s in %s at %s", operand, cell.Formula, NewCell(bctx.WorksheetID, cell.Row, cell.Col)))
	}

	ps := efp.ExcelParser()
	tokens := ps.Parse(cell.Formula)
	seen := make(map[Ref]struct{}, len(tokens))
	var out []Ref
	for _, token := range tokens {
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}

		operand := RequoteOperand(token.TValue)
		ref, err := parser.ParseReference(operand)
		if err != nil {
			if parser.NamesOtherWorksheet(operand) {
				return nil, unsupported(operand)
			}
			drop(dropUnparseable, operand, err)
			continue
		}

		switch ref.Kind {
		case CrossSheetReference:
			return nil, unsupported(operand)
		case CellReference:
			if !ws.HasCell(ref.Ref.StartRow, ref.Ref.StartColumn) {
				drop(dropMissingCell, operand, ErrIncompleteRange)
				continue
			}
		case RangeReference:
			if !ws.IsRangeComplete(ref.Ref) {
				drop(dropIncompleteRange, operand, ErrIncompleteRange)
				continue
			}
		}

		if _, dup := seen[ref.Ref]; dup {
			continue
		}
		seen[ref.Ref] = struct{}{}
		out = append(out, ref.Ref)
	}
	return out, nil
}

// orderForRuns sorts edges so formulas copied down a column sit next to
// each other: edges that only differ by a row translation share a key and
// end up ordered by row, which is what the compressor folds into strided
// records. the logical edge set does not depend on order.
func orderForRuns(edges []Edge) {
	slices.SortStableFunc(edges, func(a, b Edge) int {
		return cmp.Or(
			cmp.Compare(a.Dependent.StartColumn, b.Dependent.StartColumn),
			cmp.Compare(a.Dependent.EndColumn, b.Dependent.EndColumn),
			cmp.Compare(a.Precedent.StartColumn, b.Precedent.StartColumn),
			cmp.Compare(a.Precedent.EndColumn, b.Precedent.EndColumn),
			cmp.Compare(a.Precedent.Rows(), b.Precedent.Rows()),
			cmp.Compare(int64(a.Precedent.StartRow)-int64(a.Dependent.StartRow),
				int64(b.Precedent.StartRow)-int64(b.Dependent.StartRow)),
			cmp.Compare(a.Dependent.StartRow, b.Dependent.StartRow),
		)
	})
}
