package cases

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/afd-harvester/internal/afd"
)

// CleanTitle normalizes a case title: underscores become spaces, surrounding
// whitespace is trimmed and inner runs collapse to one space.
func CleanTitle(title string) string {
	title = strings.ReplaceAll(title, "_", " ")
	return strings.Join(strings.Fields(title), " ")
}

// dedupKey folds the first letter, which the wiki treats case-insensitively.
func dedupKey(cleaned string) string {
	r, size := utf8.DecodeRuneInString(cleaned)
	if r == utf8.RuneError {
		return cleaned
	}
	return string(unicode.ToUpper(r)) + cleaned[size:]
}

// DedupResult is the output of Dedup.
type DedupResult struct {
	Cases []afd.DedupCase
	// Untitled counts records without a title; they are left for manual review.
	Untitled int
}

// Dedup keeps the first record per cleaned title, in input order. The kept
// record's MultipleNoms is the OR across all of its duplicates.
func Dedup(records []afd.CaseRecord) DedupResult {
	var res DedupResult
	index := make(map[string]int, len(records))
	for _, rec := range records {
		if rec.CaseTitle == nil || CleanTitle(*rec.CaseTitle) == "" {
			res.Untitled++
			continue
		}
		cleaned := CleanTitle(*rec.CaseTitle)
		key := dedupKey(cleaned)
		if i, ok := index[key]; ok {
			res.Cases[i].MultipleNoms = res.Cases[i].MultipleNoms || rec.MultipleNoms
			continue
		}
		index[key] = len(res.Cases)
		res.Cases = append(res.Cases, afd.DedupCase{CaseRecord: rec, CleanedTitle: cleaned})
	}
	return res
}

// Titles returns the cleaned titles of cases in order.
func Titles(cases []afd.DedupCase) []string {
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.CleanedTitle
	}
	return out
}
