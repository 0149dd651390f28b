// Package cases segments daily log pages into case records and prepares the
// deduplicated case inventory.
package cases

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/logindex"
)

const (
	caseBlockSelector = "div.boilerplate"
	headingSelector   = "div.mw-heading.mw-heading3"
	// MultipleNomsMarker appears in blocks that list earlier nominations.
	MultipleNomsMarker = "AfDs for this article:"
)

// Extract returns one record per case block in markup. The first block is the
// day's own header and is skipped.
func Extract(markup, logLink string) ([]afd.CaseRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse log %q: %w", logLink, err)
	}

	blocks := doc.Find(caseBlockSelector)
	if blocks.Length() == 0 {
		return nil, nil
	}
	out := make([]afd.CaseRecord, 0, blocks.Length()-1)
	blocks.Slice(1, goquery.ToEnd).Each(func(_ int, block *goquery.Selection) {
		out = append(out, extractBlock(block, logLink))
	})
	return out, nil
}

func extractBlock(block *goquery.Selection, logLink string) afd.CaseRecord {
	rec := afd.CaseRecord{
		LogLink:      logLink,
		MultipleNoms: strings.Contains(block.Text(), MultipleNomsMarker),
	}
	heading := block.Find(headingSelector).First()
	if heading.Length() == 0 {
		// Left nil for manual correction downstream.
		return rec
	}
	title := strings.TrimSpace(heading.Text())
	rec.CaseTitle = afd.StringPtr(title)
	rec.DiscussionURL = afd.StringPtr(afd.DiscussionPath(title))
	return rec
}

// JoinDates attaches the calendar date of each record's log from the
// inventory. Records whose log is not in the inventory keep a nil Date.
func JoinDates(records []afd.CaseRecord, inventory []afd.LogLink) []afd.CaseRecord {
	byLink := make(map[string]afd.LogDate, len(inventory))
	for _, l := range inventory {
		if _, ok := byLink[l.Link]; !ok {
			byLink[l.Link] = l.LogDate
		}
	}
	out := make([]afd.CaseRecord, len(records))
	for i, rec := range records {
		if date, ok := byLink[rec.LogLink]; ok {
			d := date
			rec.Date = &d
		}
		out[i] = rec
	}
	return out
}

// LogTitle turns a "/wiki/..." log link into the page title to fetch,
// decoding it the way archive links are decoded.
func LogTitle(logLink string) (string, error) {
	return logindex.TitleFromHref(logLink)
}
