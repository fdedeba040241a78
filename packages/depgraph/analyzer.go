package depgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/vogtb/go-sheetdeps/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// AnalyzerInterface is the query and edit surface of an Analyzer
type AnalyzerInterface interface {
	// Build (re)builds the dependency store of every worksheet
	Build(ctx context.Context) error

	// Dependents returns the cells on sheet whose formulas read r
	Dependents(sheet string, r Ref) ([]Ref, error)

	// DependentsOf is Dependents with an A1 address like "A2" or "A1:B3"
	DependentsOf(sheet string, address string) ([]Ref, error)

	// Precedents returns the cells read by the formulas in r
	Precedents(sheet string, r Ref) ([]Ref, error)

	// SetFormula writes a formula cell and updates the sheet's store
	SetFormula(ctx context.Context, sheet string, row, col uint32, formula string) error

	// SetValue writes a plain cell and updates the sheet's store
	SetValue(ctx context.Context, sheet string, row, col uint32, value string) error

	// RemoveCell deletes a cell and updates the sheet's store
	RemoveCell(ctx context.Context, sheet string, row, col uint32) error

	// CompressInfo describes the compression of the sheet's store
	CompressInfo(sheet string) (string, error)

	// Stats reports every worksheet in definition order
	Stats() []SheetStats

	// SheetNames lists the worksheets in definition order
	SheetNames() []string

	// AddWorksheet adds an empty worksheet
	AddWorksheet(ctx context.Context, name string) error
}

var _ AnalyzerInterface = (*Analyzer)(nil)

// SheetStats is the build state of one worksheet
type SheetStats struct {
	Sheet  string
	Built  bool
	Err    error // why the last build failed, nil when Built
	Report BuildReport
	Store  StoreStats
}

type sheetState struct {
	store  *EdgeStore
	report BuildReport
	err    error
}

// AnalyzerOption configures an Analyzer
type AnalyzerOption func(*Analyzer)

// WithWorkers bounds how many worksheets Build processes at once
func WithWorkers(n int) AnalyzerOption {
	return func(a *Analyzer) {
		a.workers = max(n, 1)
	}
}

// WithStoreOptions sets the options every sheet store is created with
func WithStoreOptions(opts ...StoreOption) AnalyzerOption {
	return func(a *Analyzer) {
		a.builder = NewSheetDependencyBuilder(opts...)
	}
}

// WithAnalyzerLogger sets the logger used when the context carries none
func WithAnalyzerLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Analyzer owns a workbook and one dependency store per worksheet. a
// sheet's store is published only once its build succeeded; until then
// (or after a failed build) queries on it return ErrSheetNotBuilt.
type Analyzer struct {
	// editMu serializes everything that writes to the workbook: builds and
	// cell edits
	editMu sync.Mutex

	mu     sync.RWMutex
	sheets map[uint32]*sheetState

	workbook *Workbook
	builder  *SheetDependencyBuilder
	workers  int
	logger   *slog.Logger
}

// NewAnalyzer creates an analyzer over wb. nothing is built until Build is
// called.
func NewAnalyzer(wb *Workbook, opts ...AnalyzerOption) *Analyzer {
	if wb == nil {
		wb = NewWorkbook()
	}
	a := &Analyzer{
		sheets:   make(map[uint32]*sheetState),
		workbook: wb,
		builder:  NewSheetDependencyBuilder(),
		workers:  runtime.GOMAXPROCS(0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Workbook returns the analyzed workbook. callers must not edit it
// directly once the analyzer is built; use SetFormula and friends.
func (a *Analyzer) Workbook() *Workbook {
	return a.workbook
}

func (a *Analyzer) contextLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctxlog.Lookup(ctx); ok {
		return logger
	}
	return a.logger
}

// Build builds every worksheet, at most workers at a time. a sheet that
// fails is left unqueryable and does not stop the others; the failures
// come back joined. cancelling ctx stops the build and returns ctx's error.
func (a *Analyzer) Build(ctx context.Context) error {
	a.editMu.Lock()
	defer a.editMu.Unlock()

	logger := a.contextLogger(ctx)
	ctx = ctxlog.WithLogger(ctx, logger)
	started := time.Now()

	worksheets := a.workbook.Worksheets()
	logger.Info("building workbook dependencies", "sheets", len(worksheets), "workers", a.workers)

	var (
		failMu   sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, ws := range worksheets {
		g.Go(func() error {
			err := a.buildSheet(gctx, ws)
			if err == nil {
				return nil
			}
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failMu.Lock()
			failures = append(failures, fmt.Errorf("worksheet %q: %w", ws.Name(), err))
			failMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("built workbook dependencies",
		"sheets", len(worksheets),
		"failed", len(failures),
		"elapsed", time.Since(started))
	return errors.Join(failures...)
}

// buildSheet builds ws and publishes the result. callers hold editMu.
func (a *Analyzer) buildSheet(ctx context.Context, ws *Worksheet) error {
	store, report, err := a.builder.Build(ctx, ws)

	state := &sheetState{store: store, report: report, err: err}
	if err != nil {
		state.store = nil
	}
	a.mu.Lock()
	a.sheets[ws.ID()] = state
	a.mu.Unlock()
	return err
}

// lookup returns the worksheet called sheet and its published store
func (a *Analyzer) lookup(sheet string) (*Worksheet, *EdgeStore, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ws, err := a.workbook.Worksheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	state, exists := a.sheets[ws.ID()]
	if !exists {
		return ws, nil, wrapError(FailedPrecondition, ErrSheetNotBuilt, fmt.Sprintf("worksheet %q", ws.Name()))
	}
	if state.err != nil {
		return ws, nil, &AppError{
			Code:    FailedPrecondition,
			Message: fmt.Sprintf("worksheet %q: %v", ws.Name(), state.err),
			Err:     errors.Join(ErrSheetNotBuilt, state.err),
		}
	}
	return ws, state.store, nil
}

// worksheet looks sheet up under the read lock, AddWorksheet may be
// defining a new one
func (a *Analyzer) worksheet(sheet string) (*Worksheet, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workbook.Worksheet(sheet)
}

// AddWorksheet adds an empty worksheet and builds its (empty) store
func (a *Analyzer) AddWorksheet(ctx context.Context, name string) error {
	a.editMu.Lock()
	defer a.editMu.Unlock()

	a.mu.Lock()
	ws, err := a.workbook.AddWorksheet(name)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	return a.rebuild(ctx, ws)
}

// Store returns the published store of sheet
func (a *Analyzer) Store(sheet string) (*EdgeStore, error) {
	_, store, err := a.lookup(sheet)
	return store, err
}

// Dependents returns the cells on sheet whose formulas read any cell of r.
// the worksheet ID of r is replaced by the sheet's own.
func (a *Analyzer) Dependents(sheet string, r Ref) ([]Ref, error) {
	ws, store, err := a.lookup(sheet)
	if err != nil {
		return nil, err
	}
	r.WorksheetID = ws.ID()
	return store.GetDependents(r), nil
}

// DependentsOf parses address and returns its dependents on sheet
func (a *Analyzer) DependentsOf(sheet string, address string) ([]Ref, error) {
	ws, err := a.worksheet(sheet)
	if err != nil {
		return nil, err
	}
	r, err := ParseRef(ws.ID(), address)
	if err != nil {
		return nil, err
	}
	return a.Dependents(sheet, r)
}

// Precedents returns the cells read by the formulas of any cell in r
func (a *Analyzer) Precedents(sheet string, r Ref) ([]Ref, error) {
	ws, store, err := a.lookup(sheet)
	if err != nil {
		return nil, err
	}
	r.WorksheetID = ws.ID()
	return store.GetPrecedents(r), nil
}

// SetFormula writes formula at row and col. when the cell already existed
// and the sheet is built, its precedents are replaced in place; a new cell
// may complete ranges other formulas dropped, so the sheet is rebuilt. an
// unsupported reference leaves the sheet unqueryable until it is fixed.
func (a *Analyzer) SetFormula(ctx context.Context, sheet string, row, col uint32, formula string) error {
	a.editMu.Lock()
	defer a.editMu.Unlock()

	ws, err := a.worksheet(sheet)
	if err != nil {
		return err
	}
	existed := ws.HasCell(row, col)
	ws.SetCell(row, col, "", formula)
	return a.refresh(ctx, ws, row, col, existed)
}

// SetValue writes a plain value at row and col, dropping any formula the
// cell held
func (a *Analyzer) SetValue(ctx context.Context, sheet string, row, col uint32, value string) error {
	a.editMu.Lock()
	defer a.editMu.Unlock()

	ws, err := a.worksheet(sheet)
	if err != nil {
		return err
	}
	existed := ws.HasCell(row, col)
	ws.SetCell(row, col, value, "")
	return a.refresh(ctx, ws, row, col, existed)
}

// RemoveCell deletes the cell at row and col. ranges covering it are no
// longer complete, so the sheet is rebuilt.
func (a *Analyzer) RemoveCell(ctx context.Context, sheet string, row, col uint32) error {
	a.editMu.Lock()
	defer a.editMu.Unlock()

	ws, err := a.worksheet(sheet)
	if err != nil {
		return err
	}
	if !ws.RemoveCell(row, col) {
		return nil
	}
	return a.rebuild(ctx, ws)
}

// refresh brings the store of ws up to date after the cell at row and col
// changed. callers hold editMu.
func (a *Analyzer) refresh(ctx context.Context, ws *Worksheet, row, col uint32, existed bool) error {
	a.mu.RLock()
	state, built := a.sheets[ws.ID()]
	a.mu.RUnlock()

	if !existed || !built || state.err != nil {
		return a.rebuild(ctx, ws)
	}

	logger := a.contextLogger(ctx).With("sheet", ws.Name())
	cell, _ := ws.GetCell(row, col)
	precedents, err := a.builder.Precedents(ctxlog.WithLogger(ctx, logger), ws, cell)
	if err != nil {
		logger.Warn("edit made sheet unqueryable", "cell", NewCell(ws.ID(), row, col).String(), "error", err)
		a.mu.Lock()
		a.sheets[ws.ID()] = &sheetState{report: state.report, err: err}
		a.mu.Unlock()
		return err
	}

	state.store.SetPrecedents(NewCell(ws.ID(), row, col), precedents)
	logger.Debug("updated cell dependencies",
		"cell", NewCell(ws.ID(), row, col).String(),
		"precedents", len(precedents))
	return nil
}

func (a *Analyzer) rebuild(ctx context.Context, ws *Worksheet) error {
	logger := a.contextLogger(ctx)
	logger.Debug("rebuilding sheet", "sheet", ws.Name())
	return a.buildSheet(ctxlog.WithLogger(ctx, logger), ws)
}

// CompressInfo describes the store of sheet
func (a *Analyzer) CompressInfo(sheet string) (string, error) {
	_, store, err := a.lookup(sheet)
	if err != nil {
		return "", err
	}
	return store.CompressInfo(), nil
}

// Stats reports the build state of every worksheet in definition order
func (a *Analyzer) Stats() []SheetStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	worksheets := a.workbook.Worksheets()
	out := make([]SheetStats, 0, len(worksheets))
	for _, ws := range worksheets {
		stats := SheetStats{Sheet: ws.Name()}
		if state, exists := a.sheets[ws.ID()]; exists {
			stats.Report = state.report
			stats.Err = state.err
			if state.store != nil {
				stats.Built = true
				stats.Store = state.store.Stats()
			}
		}
		out = append(out, stats)
	}
	return out
}

// SheetNames lists the worksheets in definition order
func (a *Analyzer) SheetNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workbook.Names()
}
