// Package afd defines the records shared by the harvesting pipeline stages.
package afd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DiscussionNamespace prefixes every deletion discussion page title.
	DiscussionNamespace = "Wikipedia:Articles_for_deletion/"
	// WikiBaseURL is the public page prefix used to build discussion URLs.
	WikiBaseURL = "https://en.wikipedia.org/wiki/"
	// DoesNotExistText replaces the discussion markup when the discussion page is absent.
	DoesNotExistText = "DOES_NOT_EXIST"
	// RedirectedMarker is written in the pageid column for redirected articles.
	RedirectedMarker = "REDIRECTED"
)

// LogDate is the calendar day a daily log covers.
type LogDate struct {
	Year  int
	Month string
	Day   int
}

// LogLink is one daily discussion log discovered by the index crawler.
// Year 0 marks an entry whose date could not be parsed.
type LogLink struct {
	LogDate
	Link string
}

// IsSentinel reports whether the date could not be parsed from the link text.
func (l LogLink) IsSentinel() bool {
	return l.Year == 0
}

// CaseRecord is one case block found inside a daily log. CaseTitle and
// DiscussionURL are nil when the block has no heading; such rows are kept for
// manual review.
type CaseRecord struct {
	LogLink       string
	CaseTitle     *string
	DiscussionURL *string
	MultipleNoms  bool
	// Date is filled by joining against the log inventory.
	Date *LogDate
}

// Title returns the case title or "" when absent.
func (c CaseRecord) Title() string {
	if c.CaseTitle == nil {
		return ""
	}
	return *c.CaseTitle
}

// DedupCase is a case after title cleaning and deduplication.
type DedupCase struct {
	CaseRecord
	CleanedTitle string
}

// DeletionDiscussion is the per-case document persisted for downstream analysis.
type DeletionDiscussion struct {
	CaseTitle        string     `json:"case_title"`
	URL              string     `json:"url"`
	Text             string     `json:"text"`
	EarliestRevision *time.Time `json:"e_rev_date"`
}

// CaseMeta reconciles a case title against the live article.
type CaseMeta struct {
	CleanedTitle  string
	PageExists    bool
	ReturnedTitle *string
	PageID        PageID
}

// RevisionRow is one row of the earliest-revision pass.
type RevisionRow struct {
	PageTitle        string
	EarliestRevision *time.Time
}

// DiscussionTitle returns the discussion page title for a case title.
func DiscussionTitle(caseTitle string) string {
	return DiscussionNamespace + caseTitle
}

// DiscussionPath returns the namespace path used in the case inventory.
func DiscussionPath(caseTitle string) string {
	return DiscussionNamespace + strings.ReplaceAll(caseTitle, " ", "_")
}

// PageURL returns the public URL of a page title.
func PageURL(title string) string {
	return WikiBaseURL + strings.ReplaceAll(title, " ", "_")
}

type pageIDState uint8

const (
	pageIDNone pageIDState = iota
	pageIDNumeric
	pageIDRedirected
)

// PageID distinguishes an existing page's numeric id from a redirect and
// from a page that never existed. The zero value means no id.
type PageID struct {
	id    int64
	state pageIDState
}

// NumericPageID wraps an existing page's identifier.
func NumericPageID(id int64) PageID {
	return PageID{id: id, state: pageIDNumeric}
}

// RedirectedPageID marks a title that now redirects elsewhere.
func RedirectedPageID() PageID {
	return PageID{state: pageIDRedirected}
}

// Value returns the numeric id when one is present.
func (p PageID) Value() (int64, bool) {
	return p.id, p.state == pageIDNumeric
}

// Redirected reports whether the id carries the redirect marker.
func (p PageID) Redirected() bool {
	return p.state == pageIDRedirected
}

// IsZero reports whether no id is recorded.
func (p PageID) IsZero() bool {
	return p.state == pageIDNone
}

// String renders the pageid column value.
func (p PageID) String() string {
	switch p.state {
	case pageIDNumeric:
		return strconv.FormatInt(p.id, 10)
	case pageIDRedirected:
		return RedirectedMarker
	default:
		return ""
	}
}

// ParsePageID is the inverse of PageID.String.
func ParsePageID(raw string) (PageID, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return PageID{}, nil
	case RedirectedMarker:
		return RedirectedPageID(), nil
	}
	// Float-formatted ids ("17.0") are accepted.
	raw = strings.TrimSuffix(raw, ".0")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return PageID{}, fmt.Errorf("parse pageid %q: %w", raw, err)
	}
	return NumericPageID(id), nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
