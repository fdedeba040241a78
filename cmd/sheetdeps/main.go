// Command sheetdeps builds compressed dependency graphs for workbook
// fixtures and answers dependents queries against them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vogtb/go-sheetdeps/internal/config"
	"github.com/vogtb/go-sheetdeps/internal/ctxlog"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logFormat  string

	// cfg is loaded by the root command before any subcommand runs
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:           "sheetdeps",
		Short:         "Compressed dependency graphs for spreadsheet workbooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = logFormat
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded

			logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(analyzeCmd, dependentsCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
