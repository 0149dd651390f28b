package cases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/tsv"
	"github.com/JakeFAU/afd-harvester/internal/wiki"
)

// Months in calendar order, as they appear in log titles.
var Months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Renderer fetches the rendered markup of a page.
type Renderer interface {
	FetchRendered(ctx context.Context, title string, opts ...wiki.CallOption) (string, error)
}

// MonthlyConfig bounds the months collected and names the output directory.
type MonthlyConfig struct {
	OutputDir string
	StartYear int
	EndYear   int
}

// MonthlyHarvester extracts cases one month at a time. A month whose table
// already exists is skipped.
type MonthlyHarvester struct {
	cfg      MonthlyConfig
	renderer Renderer
	logger   *zap.Logger
}

// MonthlySummary reports what RunMonths did.
type MonthlySummary struct {
	Written []string
	Skipped int
	Failed  int
	Cases   int
}

// NewMonthlyHarvester builds a MonthlyHarvester.
func NewMonthlyHarvester(cfg MonthlyConfig, renderer Renderer, logger *zap.Logger) (*MonthlyHarvester, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	if cfg.StartYear <= 0 || cfg.EndYear < cfg.StartYear {
		return nil, fmt.Errorf("invalid year range %d-%d", cfg.StartYear, cfg.EndYear)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonthlyHarvester{cfg: cfg, renderer: renderer, logger: logger}, nil
}

// MonthPath is the table written for one month.
func (h *MonthlyHarvester) MonthPath(year, month int) string {
	return filepath.Join(h.cfg.OutputDir, fmt.Sprintf("deletion_cases_%d_%02d_uncleaned.tsv", year, month))
}

// RunMonths walks every month of the configured years. When any log of a
// month fails to fetch, that month's table is not written so the next run
// retries it. Only storage failures are returned as errors.
func (h *MonthlyHarvester) RunMonths(ctx context.Context, inventory []afd.LogLink) (MonthlySummary, error) {
	var sum MonthlySummary
	byMonth := make(map[afd.LogDate][]string)
	for _, l := range inventory {
		key := afd.LogDate{Year: l.Year, Month: l.Month}
		byMonth[key] = append(byMonth[key], l.Link)
	}

	for year := h.cfg.StartYear; year <= h.cfg.EndYear; year++ {
		for i, month := range Months {
			if err := ctx.Err(); err != nil {
				return sum, fmt.Errorf("monthly harvest canceled: %w", err)
			}
			path := h.MonthPath(year, i+1)
			if _, err := os.Stat(path); err == nil {
				h.logger.Info("month already collected", zap.Int("year", year), zap.String("month", month))
				sum.Skipped++
				continue
			}
			logs := byMonth[afd.LogDate{Year: year, Month: month}]
			records, err := h.collectMonth(ctx, logs)
			if err != nil {
				h.logger.Error("month incomplete; not written",
					zap.Int("year", year), zap.String("month", month), zap.Error(err))
				sum.Failed++
				continue
			}
			records = JoinDates(records, inventory)
			if err := tsv.WriteFile(path, tsv.CaseColumns, tsv.CaseRows(records)); err != nil {
				return sum, fmt.Errorf("write %s: %w", path, err)
			}
			h.logger.Info("month collected",
				zap.Int("year", year), zap.String("month", month),
				zap.Int("logs", len(logs)), zap.Int("cases", len(records)), zap.String("path", path))
			sum.Written = append(sum.Written, path)
			sum.Cases += len(records)
		}
	}
	return sum, nil
}

func (h *MonthlyHarvester) collectMonth(ctx context.Context, logs []string) ([]afd.CaseRecord, error) {
	var (
		out  []afd.CaseRecord
		errs []error
	)
	for _, link := range logs {
		title, err := LogTitle(link)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		markup, err := h.renderer.FetchRendered(ctx, title)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s: %w", link, err))
			continue
		}
		records, err := Extract(markup, link)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, records...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
