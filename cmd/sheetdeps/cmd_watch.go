package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vogtb/go-sheetdeps/internal/ctxlog"
	"github.com/vogtb/go-sheetdeps/internal/fixture"
	"github.com/vogtb/go-sheetdeps/packages/depgraph"
)

// reloadDelay coalesces the bursts of events editors emit for one save
const reloadDelay = 150 * time.Millisecond

var (
	metricsAddr string

	watchCmd = &cobra.Command{
		Use:   "watch FILE",
		Short: "Build a fixture, then apply every saved change as cell edits",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
)

func init() {
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (overrides metrics.addr)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)
	path := filepath.Clean(args[0])

	analyzer, err := loadAnalyzer(cmd, path)
	if analyzer == nil {
		return err
	}
	if err != nil {
		logger.Warn("initial build incomplete", "error", err)
	}
	printCompression(cmd.OutOrStdout(), analyzer)

	addr := cfg.Metrics.Addr
	if cmd.Flags().Changed("metrics-addr") {
		addr = metricsAddr
	}
	if addr != "" {
		stop, err := serveMetrics(ctx, addr, analyzer)
		if err != nil {
			return err
		}
		defer stop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so the directory is watched
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	logger.Info("watching fixture", "path", path)

	reload := time.NewTimer(reloadDelay)
	reload.Stop()
	defer reload.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				reload.Reset(reloadDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("fixture watcher error", "error", err)

		case <-reload.C:
			next, err := fixture.Load(ctx, path)
			if err != nil {
				logger.Warn("skipping unreadable fixture", "path", path, "error", err)
				continue
			}
			result, err := syncWorkbook(ctx, analyzer, next)
			logger.Info("applied fixture changes",
				"sheets_added", result.SheetsAdded,
				"cells_added", result.Added,
				"cells_updated", result.Updated,
				"cells_removed", result.Removed)
			if err != nil {
				logger.Warn("some edits left sheets unqueryable", "error", err)
			}
			printCompression(cmd.OutOrStdout(), analyzer)

		case <-ctx.Done():
			logger.Info("fixture watcher stopping")
			return nil
		}
	}
}

func printCompression(out io.Writer, analyzer *depgraph.Analyzer) {
	for _, stats := range analyzer.Stats() {
		if !stats.Built {
			fmt.Fprintf(out, "%s\tnot built: %v\n", stats.Sheet, stats.Err)
			continue
		}
		if info, err := analyzer.CompressInfo(stats.Sheet); err == nil {
			fmt.Fprintf(out, "%s\t%s\n", stats.Sheet, info)
		}
	}
}

// serveMetrics exposes the default prometheus registry, with the analyzer's
// per-sheet gauges added, on addr. the returned func shuts the server down.
func serveMetrics(ctx context.Context, addr string, analyzer *depgraph.Analyzer) (func(), error) {
	logger := ctxlog.FromContext(ctx)

	collector := depgraph.NewSheetCollector(analyzer)
	if err := prometheus.Register(collector); err != nil {
		return nil, fmt.Errorf("failed to register sheet metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		prometheus.Unregister(collector)
	}, nil
}
