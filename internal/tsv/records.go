package tsv

import (
	"fmt"
	"strconv"
	"time"

	"github.com/JakeFAU/afd-harvester/internal/afd"
)

// Column sets of the pipeline tables.
var (
	LogLinkColumns  = []string{"year", "month", "day", "log_link"}
	CaseColumns     = []string{"log_link", "case_title", "case_discussion_url", "multiple_noms", "year", "month", "day"}
	DedupColumns    = append(append([]string(nil), CaseColumns...), "case_title_cleaned")
	CaseMetaColumns = []string{"case_title_cleaned", "page_exists", "returned_title", "pageid"}
	RevisionColumns = []string{"page_title", "earliest_revision_date"}
)

// LogLinkRows renders the log inventory.
func LogLinkRows(links []afd.LogLink) [][]string {
	rows := make([][]string, len(links))
	for i, l := range links {
		rows[i] = []string{strconv.Itoa(l.Year), l.Month, strconv.Itoa(l.Day), l.Link}
	}
	return rows
}

// ParseLogLinks reads a log inventory table.
func ParseLogLinks(t *Table) ([]afd.LogLink, error) {
	if err := t.Require(LogLinkColumns...); err != nil {
		return nil, err
	}
	out := make([]afd.LogLink, 0, len(t.Rows))
	for n, row := range t.Rows {
		year, err := atoiOrZero(t.Get(row, "year"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		day, err := atoiOrZero(t.Get(row, "day"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		out = append(out, afd.LogLink{
			LogDate: afd.LogDate{Year: year, Month: t.Get(row, "month"), Day: day},
			Link:    t.Get(row, "log_link"),
		})
	}
	return out, nil
}

func caseCells(c afd.CaseRecord) []string {
	year, month, day := "", "", ""
	if c.Date != nil {
		year, month, day = itoaOrEmpty(c.Date.Year), c.Date.Month, itoaOrEmpty(c.Date.Day)
	}
	return []string{
		c.LogLink,
		FormatOptional(c.CaseTitle),
		FormatOptional(c.DiscussionURL),
		FormatBool(c.MultipleNoms),
		year, month, day,
	}
}

// CaseRows renders the case inventory.
func CaseRows(records []afd.CaseRecord) [][]string {
	rows := make([][]string, len(records))
	for i, c := range records {
		rows[i] = caseCells(c)
	}
	return rows
}

// DedupRows renders the deduplicated case inventory.
func DedupRows(cases []afd.DedupCase) [][]string {
	rows := make([][]string, len(cases))
	for i, c := range cases {
		rows[i] = append(caseCells(c.CaseRecord), c.CleanedTitle)
	}
	return rows
}

// ParseCases reads a case inventory table.
func ParseCases(t *Table) ([]afd.CaseRecord, error) {
	if err := t.Require("log_link", "case_title", "case_discussion_url", "multiple_noms"); err != nil {
		return nil, err
	}
	out := make([]afd.CaseRecord, 0, len(t.Rows))
	for n, row := range t.Rows {
		noms, err := ParseBool(t.Get(row, "multiple_noms"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		rec := afd.CaseRecord{
			LogLink:       t.Get(row, "log_link"),
			CaseTitle:     ParseOptional(t.Get(row, "case_title")),
			DiscussionURL: ParseOptional(t.Get(row, "case_discussion_url")),
			MultipleNoms:  noms,
		}
		if y := t.Get(row, "year"); y != "" {
			year, err := atoiOrZero(y)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", n+1, err)
			}
			day, err := atoiOrZero(t.Get(row, "day"))
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", n+1, err)
			}
			rec.Date = &afd.LogDate{Year: year, Month: t.Get(row, "month"), Day: day}
		}
		out = append(out, rec)
	}
	return out, nil
}

// CaseMetaRows renders a meta chunk.
func CaseMetaRows(rows []afd.CaseMeta) [][]string {
	out := make([][]string, len(rows))
	for i, m := range rows {
		out[i] = []string{m.CleanedTitle, FormatBool(m.PageExists), FormatOptional(m.ReturnedTitle), m.PageID.String()}
	}
	return out
}

// ParseCaseMeta reads a meta chunk.
func ParseCaseMeta(t *Table) ([]afd.CaseMeta, error) {
	if err := t.Require(CaseMetaColumns...); err != nil {
		return nil, err
	}
	out := make([]afd.CaseMeta, 0, len(t.Rows))
	for n, row := range t.Rows {
		exists, err := ParseBool(t.Get(row, "page_exists"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		id, err := afd.ParsePageID(t.Get(row, "pageid"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		out = append(out, afd.CaseMeta{
			CleanedTitle:  t.Get(row, "case_title_cleaned"),
			PageExists:    exists,
			ReturnedTitle: ParseOptional(t.Get(row, "returned_title")),
			PageID:        id,
		})
	}
	return out, nil
}

// RevisionRows renders an earliest-revision chunk.
func RevisionRows(rows []afd.RevisionRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		ts := ""
		if r.EarliestRevision != nil {
			ts = r.EarliestRevision.UTC().Format(time.RFC3339)
		}
		out[i] = []string{r.PageTitle, ts}
	}
	return out
}

// Column returns every value of column name, in row order.
func Column(t *Table, name string) ([]string, error) {
	if err := t.Require(name); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, t.Get(row, name))
	}
	return out, nil
}
