package wiki

import (
	"encoding/json"
	"fmt"
	"time"
)

// ParseKind tags the variant held by a ParseResult.
type ParseKind int

// Parse result variants.
const (
	ParseFound ParseKind = iota
	ParseRedirect
	ParseAPIError
)

func (k ParseKind) String() string {
	switch k {
	case ParseFound:
		return "found"
	case ParseRedirect:
		return "redirect"
	case ParseAPIError:
		return "api_error"
	default:
		return "unknown"
	}
}

// ParseResult is the outcome of a parse call.
//
//   - ParseFound: Title, PageID and Text are set.
//   - ParseRedirect: RedirectTarget is the first redirect hop; Title, PageID and Text describe the target.
//   - ParseAPIError: Err is set.
type ParseResult struct {
	Kind           ParseKind
	Title          string
	PageID         int64
	Text           string
	RedirectTarget string
	Err            *APIError
}

// QueryKind tags the variant held by a QueryResult.
type QueryKind int

// Query result variants.
const (
	QueryFound QueryKind = iota
	QueryMissing
	QueryAPIError
)

func (k QueryKind) String() string {
	switch k {
	case QueryFound:
		return "found"
	case QueryMissing:
		return "missing"
	case QueryAPIError:
		return "api_error"
	default:
		return "unknown"
	}
}

// QueryResult is the outcome of a page-properties query.
type QueryResult struct {
	Kind           QueryKind
	Title          string
	PageID         int64
	QID            string
	RedirectTarget string
	Err            *APIError
}

// Revision is a single entry of a page's revision history.
type Revision struct {
	RevID     int64     `json:"revid"`
	ParentID  int64     `json:"parentid"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Size      int       `json:"size"`
	SHA1      string    `json:"sha1"`
	Comment   string    `json:"comment"`
}

type redirect struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type parseEnvelope struct {
	Parse *struct {
		Title     string     `json:"title"`
		PageID    int64      `json:"pageid"`
		Text      string     `json:"text"`
		Redirects []redirect `json:"redirects"`
	} `json:"parse"`
	Error *APIError `json:"error"`
}

type queryPage struct {
	PageID    int64  `json:"pageid"`
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	Invalid   bool   `json:"invalid"`
	PageProps *struct {
		WikibaseItem string `json:"wikibase_item"`
	} `json:"pageprops"`
	Revisions []Revision `json:"revisions"`
}

type queryEnvelope struct {
	Query *struct {
		Redirects []redirect  `json:"redirects"`
		Pages     []queryPage `json:"pages"`
	} `json:"query"`
	Error *APIError `json:"error"`
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return nil
}

func toParseResult(env parseEnvelope) (ParseResult, error) {
	if env.Error != nil {
		return ParseResult{Kind: ParseAPIError, Err: env.Error}, nil
	}
	if env.Parse == nil {
		return ParseResult{}, fmt.Errorf("%w: no parse key", ErrUnexpectedPayload)
	}
	res := ParseResult{
		Kind:   ParseFound,
		Title:  env.Parse.Title,
		PageID: env.Parse.PageID,
		Text:   env.Parse.Text,
	}
	if len(env.Parse.Redirects) > 0 {
		res.Kind = ParseRedirect
		res.RedirectTarget = env.Parse.Redirects[0].To
	}
	return res, nil
}

func toQueryResult(env queryEnvelope) (QueryResult, error) {
	if env.Error != nil {
		return QueryResult{Kind: QueryAPIError, Err: env.Error}, nil
	}
	if env.Query == nil || len(env.Query.Pages) == 0 {
		return QueryResult{}, fmt.Errorf("%w: no pages in query", ErrUnexpectedPayload)
	}
	page := env.Query.Pages[0]
	res := QueryResult{Title: page.Title}
	if len(env.Query.Redirects) > 0 {
		res.RedirectTarget = env.Query.Redirects[0].To
	}
	if page.Missing || page.Invalid || page.PageID == 0 {
		res.Kind = QueryMissing
		return res, nil
	}
	res.Kind = QueryFound
	res.PageID = page.PageID
	if page.PageProps != nil {
		res.QID = page.PageProps.WikibaseItem
	}
	return res, nil
}

func toRevision(env queryEnvelope) (Revision, error) {
	if env.Error != nil {
		return Revision{}, env.Error
	}
	if env.Query == nil || len(env.Query.Pages) == 0 {
		return Revision{}, fmt.Errorf("%w: no pages in query", ErrUnexpectedPayload)
	}
	page := env.Query.Pages[0]
	if page.Missing || page.Invalid {
		return Revision{}, fmt.Errorf("%w: %s", ErrMissingPage, page.Title)
	}
	if len(page.Revisions) == 0 {
		return Revision{}, fmt.Errorf("%w: %s", ErrNoRevisions, page.Title)
	}
	return page.Revisions[0], nil
}
