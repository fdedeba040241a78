package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vogtb/go-sheetdeps/internal/fixture"
	"github.com/vogtb/go-sheetdeps/packages/depgraph"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Build every sheet of a fixture and print its compression",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents FILE SHEET ADDRESS",
	Short: "Print the cells whose formulas read ADDRESS",
	Args:  cobra.ExactArgs(3),
	RunE:  runDependents,
}

// loadAnalyzer loads a fixture and builds it. a build error is returned
// next to the analyzer, sheets that did build stay queryable.
func loadAnalyzer(cmd *cobra.Command, path string) (*depgraph.Analyzer, error) {
	wb, err := fixture.Load(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	analyzer := depgraph.NewAnalyzer(wb, cfg.AnalyzerOptions()...)
	return analyzer, analyzer.Build(cmd.Context())
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	analyzer, buildErr := loadAnalyzer(cmd, args[0])
	if analyzer == nil {
		return buildErr
	}
	if err := cmd.Context().Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, stats := range analyzer.Stats() {
		if !stats.Built {
			fmt.Fprintf(out, "%s\tnot built: %v\n", stats.Sheet, stats.Err)
			continue
		}
		info, err := analyzer.CompressInfo(stats.Sheet)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\tstrided=%d dropped=%d\n", stats.Sheet, info, stats.Store.Strided, totalDropped(stats.Report))
	}
	return buildErr
}

func totalDropped(report depgraph.BuildReport) int {
	n := 0
	for _, count := range report.Dropped {
		n += count
	}
	return n
}

func runDependents(cmd *cobra.Command, args []string) error {
	analyzer, buildErr := loadAnalyzer(cmd, args[0])
	if analyzer == nil {
		return buildErr
	}

	dependents, err := analyzer.DependentsOf(args[1], args[2])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, ref := range dependents {
		fmt.Fprintln(out, ref.String())
	}
	return nil
}
