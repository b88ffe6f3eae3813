package main

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/sirikarn/edoc-pipeline/internal/config"
)

var sendSummaryCommand = &cobra.Command{
	Use:   "send-summary",
	Short: "Re-send the grouped summary mails from the recorded outcomes",
	Long: `Reads the outcome store and sends one summary mail per (team, operator)
group without processing any bundles. Useful when a run finished but some
notifications failed to deliver.`,
	RunE: sendSummaryCmd,
}

var (
	sendConfigPath string
	sendVerbose    bool
)

func init() {
	sendSummaryCommand.Flags().StringVar(&sendConfigPath, "config", "config.json", "Path to config.json file")
	sendSummaryCommand.Flags().BoolVarP(&sendVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(sendSummaryCommand)
}

func sendSummaryCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load(sendConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = sendVerbose
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)
	_, outcomes, dispatcher := buildPipeline(cfg, nil, logger)

	groups, err := outcomes.Groups()
	if err != nil {
		return fmt.Errorf("failed to read outcome groups: %w", err)
	}
	if len(groups) == 0 {
		level.Info(logger).Log("msg", "no recorded outcomes, nothing to send")
		return nil
	}

	if failed := dispatcher.Dispatch(ctx, groups); failed > 0 {
		return fmt.Errorf("%d of %d summaries failed to send", failed, len(groups))
	}
	level.Info(logger).Log("msg", "summaries sent", "groups", len(groups))
	return nil
}
