package main

import (
	"context"
	"fmt"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/sirikarn/edoc-pipeline/internal/archive"
	"github.com/sirikarn/edoc-pipeline/internal/assemble"
	"github.com/sirikarn/edoc-pipeline/internal/config"
	"github.com/sirikarn/edoc-pipeline/internal/convert"
	"github.com/sirikarn/edoc-pipeline/internal/db"
	"github.com/sirikarn/edoc-pipeline/internal/directory"
	"github.com/sirikarn/edoc-pipeline/internal/graph"
	"github.com/sirikarn/edoc-pipeline/internal/ledger"
	"github.com/sirikarn/edoc-pipeline/internal/library"
	"github.com/sirikarn/edoc-pipeline/internal/mail"
	"github.com/sirikarn/edoc-pipeline/internal/naming"
	"github.com/sirikarn/edoc-pipeline/internal/notify"
	"github.com/sirikarn/edoc-pipeline/internal/pipeline"
	"github.com/sirikarn/edoc-pipeline/internal/remote"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Sweep all team staging folders and process every bundle end-to-end",
	Long: `Runs one full pass: list each team's staging folder, drive every zip bundle
through validation, extraction, conversion, merge and delivery, then send the
per-team summary mails.

Configuration is loaded from a JSON file using --config. Command-line
arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath  string
	runWorkDir     string
	runDatabaseURL string
	runIgnoreEnc   bool
	runVerbose     bool
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "config.json", "Path to config.json file (values can be overridden by other flags)")
	runCommand.Flags().StringVar(&runWorkDir, "work-dir", "", "Local workspace directory for staging, temp and output files")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL for the employee name fallback (optional, defaults to EDOC_DATABASE_URL env var)")
	runCommand.Flags().BoolVar(&runIgnoreEnc, "ignore-encryption", false, "Attempt a permissive retry on encrypted PDF fragments instead of failing the bundle")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("work-dir") {
		cfg.WorkDir = runWorkDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("ignore-encryption") {
		cfg.IgnoreEncryption = runIgnoreEnc
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)

	var nameStore directory.NameStore
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			level.Warn(logger).Log("msg", "failed to connect to employee database, continuing without fallback", "err", err)
		} else {
			defer database.Close()
			nameStore = database
		}
	}

	orch, _, _ := buildPipeline(cfg, nameStore, logger)

	level.Info(logger).Log("msg", "starting run", "teams", len(cfg.Teams))
	return orch.Run(ctx, cfg.Teams)
}

// buildPipeline wires every collaborator from the configuration.
func buildPipeline(cfg *config.Config, nameStore directory.NameStore, logger gklog.Logger) (*pipeline.Orchestrator, *ledger.Ledger, *notify.Dispatcher) {
	tokens := graph.NewTokenSource(graph.Credentials{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, cfg.Graph, logger)
	api := graph.NewClient(tokens, cfg.Graph, logger)

	dir := directory.New(api, nameStore, logger)
	outcomes := ledger.New(cfg.SummaryPath, logger)
	dispatcher := notify.NewDispatcher(
		&operatorLookup{dir: dir},
		mail.New(api, cfg.Sender, logger),
		cfg.Notify,
		logger,
	)

	var strategies []assemble.ResaveStrategy
	if cfg.Resave.Enabled {
		if len(cfg.Resave.Command) > 0 {
			timeout := time.Duration(cfg.Resave.TimeoutSeconds) * time.Second
			strategies = append(strategies, assemble.NewExternalResaver(cfg.Resave.Command, timeout, logger))
		}
		strategies = append(strategies, assemble.NewLibraryResaver(logger))
	}
	assembler := assemble.New(assemble.Options{
		ResaveBeforeMerge: cfg.Resave.Enabled,
		IgnoreEncryption:  cfg.IgnoreEncryption,
	}, strategies, logger)

	deps := pipeline.Deps{
		Store:     remote.NewStore(api, cfg.Source, logger),
		Library:   library.New(api, cfg.Library, logger),
		Directory: dir,
		Converter: convert.New(logger),
		Assembler: assembler,
		Namer:     naming.New(nil),
		Outcomes:  outcomes,
		FailLog:   ledger.NewFailLog(cfg.LogsDir, logger),
		Notifier:  dispatcher,
		Extract:   archive.Extract,
		SortFiles: convert.SortByPrefix,
	}
	return pipeline.New(deps, cfg.Pipeline(), logger), outcomes, dispatcher
}

// operatorLookup resolves a scan operator's employee ID to their directory
// account so summaries reach a real mailbox.
type operatorLookup struct {
	dir *directory.Directory
}

func (o *operatorLookup) LookupUser(ctx context.Context, principal string) (directory.User, error) {
	emp, err := o.dir.Lookup(ctx, principal)
	if err != nil {
		return directory.User{}, err
	}
	return directory.User{DisplayName: emp.DisplayName, Mail: emp.Mail}, nil
}
