// Package cmd defines the afd-harvester command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/app"
	"github.com/JakeFAU/afd-harvester/internal/batch"
	"github.com/JakeFAU/afd-harvester/internal/cases"
	"github.com/JakeFAU/afd-harvester/internal/config"
	"github.com/JakeFAU/afd-harvester/internal/logging"
)

// appKeyType is the key for storing the Pipeline in the context.
type appKeyType string

const appKey appKeyType = "app"

// Pipeline is what subcommands drive. *app.App implements it; tests inject
// a fake through newApp.
type Pipeline interface {
	CollectLogs(ctx context.Context) (string, error)
	ExtractCases(ctx context.Context, logLinksPath string) (cases.MonthlySummary, error)
	DedupCases(ctx context.Context, inputs []string) (string, cases.DedupResult, error)
	Resolve(ctx context.Context, input string) (batch.Summary, error)
	Revisions(ctx context.Context, input, kind string) (batch.Summary, error)
	Redo(ctx context.Context, errorLog string) (batch.Summary, error)
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath, command string) (Pipeline, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger, command)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "afd-harvester",
		Short: "Harvests the Articles for Deletion corpus from the wiki API.",
		Long: `afd-harvester collects the daily deletion logs, extracts and deduplicates
the cases they list, and resolves every case into its discussion document
and a meta row describing the live article. Every stage resumes from the
artifacts already on disk.`,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},

		// Builds the services once the subcommand and its flags are known.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			p, err := newApp(cmd.Context(), cfgFile, cmd.Name())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, p))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if p, ok := cmd.Context().Value(appKey).(Pipeline); ok && p != nil {
				p.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env HARVEST_* overrides)")
	cmd.AddCommand(
		newLogsCmd(),
		newCasesCmd(),
		newDedupCmd(),
		newResolveCmd(),
		newRevisionsCmd(),
		newRedoCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (Pipeline, error) {
	p, ok := ctx.Value(appKey).(Pipeline)
	if !ok || p == nil {
		return nil, errors.New("application services not initialized")
	}
	return p, nil
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "afd-harvester:", err)
		if batch.IsStorage(err) {
			fmt.Fprintln(os.Stderr, "run halted on a storage failure; finished chunks are kept and a rerun resumes")
		}
		os.Exit(1)
	}
}
