package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/app"
	"github.com/JakeFAU/afd-harvester/internal/batch"
)

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Collect the daily log inventory",
		Long: `Fetches the archive home page and every yearly archive it links, and
writes the dated log links to log_links_<timestamp>.tsv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			path, err := p.CollectLogs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newCasesCmd() *cobra.Command {
	var logLinks string
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Extract cases month by month",
		Long: `Reads a log inventory and writes one case table per month of the configured
years. Months whose table exists are skipped; a month with a failed log is
not written and is retried on the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := p.ExtractCases(cmd.Context(), logLinks)
			if err != nil {
				return err
			}
			p.Logger().Info("case extraction finished",
				zap.Int("written", len(sum.Written)), zap.Int("skipped", sum.Skipped),
				zap.Int("failed", sum.Failed), zap.Int("cases", sum.Cases))
			if sum.Failed > 0 {
				return fmt.Errorf("%d months incomplete; rerun to retry them", sum.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLinks, "log-links", "", "log inventory written by the logs command")
	_ = cmd.MarkFlagRequired("log-links")
	return cmd
}

func newDedupCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Merge and deduplicate case tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			inputs, err := expand(pattern)
			if err != nil {
				return err
			}
			path, _, err := p.DedupCases(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "input", "", "glob of monthly case tables")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newResolveCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve every case into a discussion document and a meta row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := p.Resolve(cmd.Context(), input)
			return finish(p, "resolve", sum, err)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "deduplicated case table")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newRevisionsCmd() *cobra.Command {
	var input, kind string
	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "Record the earliest revision date of discussions or articles",
		Long: `With --type afd, reads case_title_cleaned from a deduplicated case table and
dates each discussion page. With --type content, reads a meta table and
dates the returned_title of every existing article.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := p.Revisions(cmd.Context(), input, kind)
			return finish(p, "revisions", sum, err)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "case or meta table")
	cmd.Flags().StringVar(&kind, "type", app.RevisionsAFD, "afd or content")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newRedoCmd() *cobra.Command {
	var errorsPath string
	cmd := &cobra.Command{
		Use:   "redo",
		Short: "Re-resolve the titles listed in an error log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := p.Redo(cmd.Context(), errorsPath)
			return finish(p, "redo", sum, err)
		},
	}
	cmd.Flags().StringVar(&errorsPath, "errors", "", "error log of an earlier run")
	_ = cmd.MarkFlagRequired("errors")
	return cmd
}

func finish(p Pipeline, job string, sum batch.Summary, err error) error {
	if err != nil {
		return err
	}
	p.Logger().Info("job finished",
		zap.String("job", job), zap.Int("chunks", sum.Chunks), zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped), zap.Int("succeeded", sum.Succeeded), zap.Int("failed", sum.Failed))
	return nil
}

func expand(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad input pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}
