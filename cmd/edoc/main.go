// Package main provides the entry point for the employee document pipeline CLI.
package main

import (
	"fmt"
	"os"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "edoc",
	Short: "Employee document processing pipeline",
	Long:  "edoc sweeps scanned document bundles from team staging folders, merges each bundle into a single PDF, delivers it to the document library and mails per-team summaries.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Verbose mode lets debug records
// through.
func newLogger(verbose bool) gklog.Logger {
	logger := gklog.NewLogfmtLogger(gklog.NewSyncWriter(os.Stderr))
	if verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return gklog.With(logger, "ts", gklog.DefaultTimestampUTC)
}
