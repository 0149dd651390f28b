// Package logindex discovers the daily deletion-discussion logs linked from
// the archive home page and its yearly archive pages.
package logindex

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/wiki"
)

// Defaults for the English Wikipedia archive layout.
const (
	DefaultArchiveHome   = "Wikipedia:Archived_articles_for_deletion_discussions"
	DefaultLogPrefix     = "/wiki/Wikipedia:Articles_for_deletion/Log/"
	DefaultYearlyPrefix  = "/wiki/Wikipedia:Archived_articles_for_deletion_discussions/20"
	wikiPathPrefix       = "/wiki/"
	yearlyContentSelect  = "div.mw-parser-output"
	yearlyListLinkSelect = "ul a"
)

var linkDatePattern = regexp.MustCompile(`(\d{4}) (\w+) (\d{1,2})`)

// Renderer fetches the rendered markup of a page.
type Renderer interface {
	FetchRendered(ctx context.Context, title string, opts ...wiki.CallOption) (string, error)
}

// Config controls which links are treated as logs and yearly archives.
type Config struct {
	ArchiveHome  string
	LogPrefix    string
	YearlyPrefix string
}

// Crawler walks the archive pages.
type Crawler struct {
	cfg      Config
	renderer Renderer
	logger   *zap.Logger
}

// New builds a Crawler, filling unset Config fields with the defaults.
func New(cfg Config, renderer Renderer, logger *zap.Logger) *Crawler {
	if cfg.ArchiveHome == "" {
		cfg.ArchiveHome = DefaultArchiveHome
	}
	if cfg.LogPrefix == "" {
		cfg.LogPrefix = DefaultLogPrefix
	}
	if cfg.YearlyPrefix == "" {
		cfg.YearlyPrefix = DefaultYearlyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, renderer: renderer, logger: logger}
}

// Run fetches the archive home page and returns the finalized inventory.
func (c *Crawler) Run(ctx context.Context) ([]afd.LogLink, error) {
	home, err := c.renderer.FetchRendered(ctx, c.cfg.ArchiveHome)
	if err != nil {
		return nil, fmt.Errorf("fetch archive home %q: %w", c.cfg.ArchiveHome, err)
	}
	links, err := c.Collect(ctx, home)
	if err != nil {
		return nil, err
	}
	return Finalize(links), nil
}

// Collect scans the home page markup, follows every distinct yearly archive
// link once, and returns all entries in discovery order, sentinels included.
func (c *Crawler) Collect(ctx context.Context, homeMarkup string) ([]afd.LogLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(homeMarkup))
	if err != nil {
		return nil, fmt.Errorf("parse archive home: %w", err)
	}

	var (
		out    []afd.LogLink
		yearly []string
		seen   = make(map[string]struct{})
	)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		switch {
		case strings.HasPrefix(href, c.cfg.LogPrefix):
			out = append(out, c.extract(a))
		case strings.HasPrefix(href, c.cfg.YearlyPrefix):
			// The home page links some years from more than one list.
			if _, dup := seen[href]; dup {
				return
			}
			seen[href] = struct{}{}
			yearly = append(yearly, href)
		}
	})

	for _, href := range yearly {
		title, err := TitleFromHref(href)
		if err != nil {
			return nil, err
		}
		markup, err := c.renderer.FetchRendered(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("fetch yearly archive %q: %w", title, err)
		}
		entries, err := c.collectYearly(markup)
		if err != nil {
			return nil, fmt.Errorf("parse yearly archive %q: %w", title, err)
		}
		c.logger.Info("yearly archive scanned", zap.String("title", title), zap.Int("links", len(entries)))
		out = append(out, entries...)
	}
	return out, nil
}

func (c *Crawler) collectYearly(markup string) ([]afd.LogLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	var out []afd.LogLink
	doc.Find(yearlyContentSelect).First().Find(yearlyListLinkSelect).Each(func(_ int, a *goquery.Selection) {
		out = append(out, c.extract(a))
	})
	return out, nil
}

func (c *Crawler) extract(a *goquery.Selection) afd.LogLink {
	href, _ := a.Attr("href")
	text := a.Text()
	date, ok := ParseLinkDate(text)
	if !ok {
		c.logger.Warn("no date found for log link", zap.String("href", href), zap.String("text", text))
	}
	return afd.LogLink{LogDate: date, Link: href}
}

// ParseLinkDate reads "<year> <month> <day>" from a link's visible text.
// It returns the zero date and false when the text does not match.
func ParseLinkDate(text string) (afd.LogDate, bool) {
	m := linkDatePattern.FindStringSubmatch(text)
	if m == nil {
		return afd.LogDate{}, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return afd.LogDate{}, false
	}
	day, err := strconv.Atoi(m[3])
	if err != nil {
		return afd.LogDate{}, false
	}
	return afd.LogDate{Year: year, Month: m[2], Day: day}, true
}

// FilterSentinel drops entries whose date could not be parsed.
func FilterSentinel(links []afd.LogLink) []afd.LogLink {
	out := make([]afd.LogLink, 0, len(links))
	for _, l := range links {
		if !l.IsSentinel() {
			out = append(out, l)
		}
	}
	return out
}

// Finalize drops sentinel entries and keeps the first entry per link.
func Finalize(links []afd.LogLink) []afd.LogLink {
	kept := FilterSentinel(links)
	seen := make(map[string]struct{}, len(kept))
	out := make([]afd.LogLink, 0, len(kept))
	for _, l := range kept {
		if _, dup := seen[l.Link]; dup {
			continue
		}
		seen[l.Link] = struct{}{}
		out = append(out, l)
	}
	return out
}

// TitleFromHref turns "/wiki/Some_Title" into "Some Title".
func TitleFromHref(href string) (string, error) {
	path := strings.TrimPrefix(href, wikiPathPrefix)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	title, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("decode href %q: %w", href, err)
	}
	return strings.ReplaceAll(title, "_", " "), nil
}
