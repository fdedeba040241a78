package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vogtb/go-sheetdeps/internal/ctxlog"
	"github.com/vogtb/go-sheetdeps/packages/depgraph"
)

type syncResult struct {
	SheetsAdded int
	Added       int
	Updated     int
	Removed     int
}

// syncWorkbook edits the analyzer's workbook until every sheet of next
// matches it, one cell edit at a time so stores are updated in place where
// they can be. sheets missing from next are kept. edit errors are joined
// and do not stop the sync.
func syncWorkbook(ctx context.Context, analyzer *depgraph.Analyzer, next *depgraph.Workbook) (syncResult, error) {
	logger := ctxlog.FromContext(ctx)

	var (
		result syncResult
		errs   []error
	)
	for _, name := range next.Names() {
		want, err := next.Worksheet(name)
		if err != nil {
			return result, err
		}

		have, err := analyzer.Workbook().Worksheet(name)
		if errors.Is(err, depgraph.ErrSheetNotFound) {
			if err := analyzer.AddWorksheet(ctx, name); err != nil {
				errs = append(errs, err)
				continue
			}
			result.SheetsAdded++
			have, err = analyzer.Workbook().Worksheet(name)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var gone []depgraph.Cell
		for cell := range have.Cells() {
			if !want.HasCell(cell.Row, cell.Col) {
				gone = append(gone, cell)
			}
		}
		for _, cell := range gone {
			if err := analyzer.RemoveCell(ctx, name, cell.Row, cell.Col); err != nil {
				errs = append(errs, editError(name, cell, err))
			}
			result.Removed++
		}

		for cell := range want.Cells() {
			old, exists := have.GetCell(cell.Row, cell.Col)
			if exists && old.Formula == cell.Formula && old.Value == cell.Value {
				continue
			}

			if cell.IsFormula() {
				err = analyzer.SetFormula(ctx, name, cell.Row, cell.Col, cell.Formula)
			} else {
				err = analyzer.SetValue(ctx, name, cell.Row, cell.Col, cell.Value)
			}
			if err != nil {
				errs = append(errs, editError(name, cell, err))
			}
			if exists {
				result.Updated++
			} else {
				result.Added++
			}
		}
	}

	wanted := next.Names()
	for _, name := range analyzer.SheetNames() {
		if !slices.ContainsFunc(wanted, func(w string) bool { return strings.EqualFold(w, name) }) {
			logger.Warn("sheet removed from fixture is kept until restart", "sheet", name)
		}
	}
	return result, errors.Join(errs...)
}

func editError(sheet string, cell depgraph.Cell, err error) error {
	return fmt.Errorf("%s!%s: %w", sheet, depgraph.NewCell(0, cell.Row, cell.Col), err)
}
