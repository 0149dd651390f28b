package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/batch"
	"github.com/JakeFAU/afd-harvester/internal/cases"
	"github.com/JakeFAU/afd-harvester/internal/clock/system"
	"github.com/JakeFAU/afd-harvester/internal/logindex"
	"github.com/JakeFAU/afd-harvester/internal/tsv"
)

// Revision pass input kinds.
const (
	RevisionsAFD     = "afd"
	RevisionsContent = "content"
)

// Artifact names under the output tree.
const (
	DedupFile          = "deletion_cases_dedup.tsv"
	MetaPrefix         = "1_case_meta"
	MetaErrorsFile     = "1_errors.log"
	RedoPrefix         = "1_redo_case_meta"
	RedoErrorsFile     = "1_redo_errors.log"
	RevisionsErrorFile = "1.5_errors.log"
)

// revisionTitlePrefix is how the revision pass addresses discussion pages.
const revisionTitlePrefix = "Wikipedia:Articles for deletion/"

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// CollectLogs crawls the archive home and writes the log inventory.
func (a *App) CollectLogs(ctx context.Context) (string, error) {
	crawler := logindex.New(logindex.Config{}, a.wiki, a.logger.Named("logindex"))
	links, err := crawler.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("collect logs: %w", err)
	}
	path := filepath.Join(a.cfg.Output.Root, fmt.Sprintf("log_links_%s.tsv", system.Stamp(a.clock.Now())))
	if err := tsv.WriteFile(path, tsv.LogLinkColumns, tsv.LogLinkRows(links)); err != nil {
		return "", fmt.Errorf("%w: write log inventory: %w", afd.ErrStorage, err)
	}
	a.logger.Info("log inventory written", zap.Int("logs", len(links)), zap.String("path", path))
	return path, nil
}

// ExtractCases walks the configured years month by month.
func (a *App) ExtractCases(ctx context.Context, logLinksPath string) (cases.MonthlySummary, error) {
	table, err := tsv.ReadFile(logLinksPath)
	if err != nil {
		return cases.MonthlySummary{}, err
	}
	inventory, err := tsv.ParseLogLinks(table)
	if err != nil {
		return cases.MonthlySummary{}, fmt.Errorf("log inventory %s: %w", logLinksPath, err)
	}
	harvester, err := cases.NewMonthlyHarvester(cases.MonthlyConfig{
		OutputDir: a.cfg.CasesDir(),
		StartYear: a.cfg.Years.Start,
		EndYear:   a.cfg.Years.End,
	}, a.wiki, a.logger.Named("cases"))
	if err != nil {
		return cases.MonthlySummary{}, err
	}
	sum, err := harvester.RunMonths(ctx, inventory)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", afd.ErrStorage, err)
	}
	return sum, nil
}

// DedupCases merges case tables, cleans titles and keeps the first record per
// title. It returns the written path.
func (a *App) DedupCases(_ context.Context, inputs []string) (string, cases.DedupResult, error) {
	var records []afd.CaseRecord
	for _, in := range inputs {
		table, err := tsv.ReadFile(in)
		if err != nil {
			return "", cases.DedupResult{}, err
		}
		recs, err := tsv.ParseCases(table)
		if err != nil {
			return "", cases.DedupResult{}, fmt.Errorf("case table %s: %w", in, err)
		}
		records = append(records, recs...)
	}
	res := cases.Dedup(records)
	path := filepath.Join(a.cfg.Output.Root, DedupFile)
	if err := tsv.WriteFile(path, tsv.DedupColumns, tsv.DedupRows(res.Cases)); err != nil {
		return "", res, fmt.Errorf("%w: write dedup table: %w", afd.ErrStorage, err)
	}
	a.logger.Info("dedup table written",
		zap.Int("inputs", len(inputs)), zap.Int("records", len(records)),
		zap.Int("cases", len(res.Cases)), zap.Int("untitled", res.Untitled), zap.String("path", path))
	return path, res, nil
}

// Resolve runs the chunked resolution over the case_title_cleaned column of input.
func (a *App) Resolve(ctx context.Context, input string) (batch.Summary, error) {
	table, err := tsv.ReadFile(input)
	if err != nil {
		return batch.Summary{}, err
	}
	raw, err := tsv.Column(table, "case_title_cleaned")
	if err != nil {
		return batch.Summary{}, fmt.Errorf("case table %s: %w", input, err)
	}
	return a.resolveTitles(ctx, "resolve", MetaPrefix, MetaErrorsFile, sortedUnique(raw))
}

// Redo re-runs the resolver over the titles listed in an error log.
func (a *App) Redo(ctx context.Context, errorLog string) (batch.Summary, error) {
	entries, err := batch.ReadErrorLog(errorLog)
	if err != nil {
		return batch.Summary{}, err
	}
	titles := batch.RedoTitles(entries)
	a.logger.Info("redo titles loaded", zap.Int("entries", len(entries)), zap.Int("titles", len(titles)))
	return a.resolveTitles(ctx, "redo", RedoPrefix, RedoErrorsFile, titles)
}

func (a *App) resolveTitles(ctx context.Context, name, prefix, errorsFile string, titles []string) (batch.Summary, error) {
	errLog, err := batch.OpenErrorLog(filepath.Join(a.cfg.MetaDir(), errorsFile))
	if err != nil {
		return batch.Summary{}, err
	}
	job := batch.Job[afd.CaseMeta]{
		Name:   name,
		Dir:    a.cfg.MetaDir(),
		Prefix: prefix,
		Header: tsv.CaseMetaColumns,
		Encode: tsv.CaseMetaRows,
		Task:   a.resolver.Resolve,
	}
	if a.meta != nil {
		job.Sink = a.meta.StoreCaseMeta
	}
	return run(ctx, a, a.cfg.Batch.Chunks, job, errLog, titles)
}

// Revisions runs the earliest-revision pass. kind "afd" reads
// case_title_cleaned and addresses the discussion pages; kind "content" reads
// returned_title of rows whose page exists.
func (a *App) Revisions(ctx context.Context, input, kind string) (batch.Summary, error) {
	table, err := tsv.ReadFile(input)
	if err != nil {
		return batch.Summary{}, err
	}
	titles, err := revisionTitles(table, kind)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("revision input %s: %w", input, err)
	}
	errLog, err := batch.OpenErrorLog(filepath.Join(a.cfg.MetaDir(), RevisionsErrorFile))
	if err != nil {
		return batch.Summary{}, err
	}
	job := batch.Job[afd.RevisionRow]{
		Name:   "revisions_" + kind,
		Dir:    a.cfg.MetaDir(),
		Prefix: "1.5_earliest_revisions_" + kind,
		Header: tsv.RevisionColumns,
		Encode: tsv.RevisionRows,
		Task: func(ctx context.Context, title string) (afd.RevisionRow, error) {
			ts, err := a.resolver.RevisionDate(ctx, title)
			if err != nil {
				return afd.RevisionRow{}, err
			}
			return afd.RevisionRow{PageTitle: title, EarliestRevision: &ts}, nil
		},
		Fallback: func(title string, _ error) afd.RevisionRow {
			return afd.RevisionRow{PageTitle: title}
		},
	}
	return run(ctx, a, a.cfg.Batch.RevisionChunks, job, errLog, titles)
}

func revisionTitles(table *tsv.Table, kind string) ([]string, error) {
	switch kind {
	case RevisionsAFD:
		raw, err := tsv.Column(table, "case_title_cleaned")
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(raw))
		for _, t := range raw {
			if t != "" {
				out = append(out, revisionTitlePrefix+t)
			}
		}
		return out, nil
	case RevisionsContent:
		metas, err := tsv.ParseCaseMeta(table)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(metas))
		for _, m := range metas {
			if m.PageExists && m.ReturnedTitle != nil {
				out = append(out, *m.ReturnedTitle)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown revision type %q (want %s or %s)", kind, RevisionsAFD, RevisionsContent)
	}
}

func run[R any](ctx context.Context, a *App, chunks int, job batch.Job[R], errLog *batch.ErrorLog, titles []string) (batch.Summary, error) {
	opts, err := a.runnerOptions()
	if err != nil {
		return batch.Summary{}, err
	}
	runner, err := batch.NewRunner(batch.Config{Chunks: chunks, Workers: a.cfg.Batch.Workers}, job, errLog, a.logger, opts...)
	if err != nil {
		return batch.Summary{}, err
	}
	return runner.Run(ctx, titles)
}

// sortedUnique drops blanks and duplicates and sorts, so chunk membership is
// stable across runs over the same table.
func sortedUnique(titles []string) []string {
	seen := make(map[string]struct{}, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
