package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/batch"
	"github.com/JakeFAU/afd-harvester/internal/config"
	"github.com/JakeFAU/afd-harvester/internal/storage/memory"
	"github.com/JakeFAU/afd-harvester/internal/titlecodec"
	"github.com/JakeFAU/afd-harvester/internal/tsv"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

const homeMarkup = `<div class="mw-parser-output">
<a href="/wiki/Wikipedia:Articles_for_deletion/Log/2008_March_5">2008 March 5</a>
<a href="/wiki/Wikipedia:Articles_for_deletion/Log/Today">Today</a>
</div>`

const dayMarkup = `<div class="mw-parser-output">
<div class="boilerplate">header</div>
<div class="boilerplate"><div class="mw-heading mw-heading3"><h3>Foo</h3></div></div>
<div class="boilerplate"><div class="mw-heading mw-heading3"><h3>Old</h3></div><p>AfDs for this article:</p></div>
</div>`

// wikiStub answers the handful of pages the pipeline touches. Titles
// containing "Broken" fail at the transport level until healed is set.
type wikiStub struct {
	healed atomic.Bool
	mu     sync.Mutex
	calls  int
}

func (s *wikiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	q := r.URL.Query()
	title := q.Get("page") + q.Get("titles")
	if strings.Contains(title, "Broken") && !s.healed.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.respond(q.Get("action"), q.Get("prop"), title)))
}

func (s *wikiStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *wikiStub) respond(action, prop, title string) string {
	switch {
	case action == "parse" && title == "Wikipedia:Archived_articles_for_deletion_discussions":
		return parseBody(title, 1, homeMarkup)
	case action == "parse" && strings.Contains(title, "/Log/2008"):
		return parseBody(title, 2, dayMarkup)
	case action == "parse" && strings.HasPrefix(title, afd.DiscussionNamespace):
		return parseBody(title, 3, "<div>discussion</div>")
	case action == "parse" && title == "Old":
		return `{"parse":{"title":"New","pageid":9,"redirects":[{"from":"Old","to":"New"}],"text":"<p>new</p>"}}`
	case action == "parse" && title == "Gone":
		return `{"error":{"code":"missingtitle","info":"The page you specified doesn't exist."}}`
	case action == "parse":
		return parseBody(title, 42, "<p>article</p>")
	case prop == "pageprops" && strings.HasSuffix(title, "/Gone"):
		return fmt.Sprintf(`{"query":{"pages":[{"ns":4,"title":%q,"missing":true}]}}`, title)
	case prop == "pageprops":
		return fmt.Sprintf(`{"query":{"pages":[{"pageid":7,"ns":4,"title":%q}]}}`, title)
	case prop == "revisions" && strings.Contains(title, "Nobody"):
		return fmt.Sprintf(`{"query":{"pages":[{"ns":4,"title":%q,"missing":true}]}}`, title)
	case prop == "revisions":
		return fmt.Sprintf(`{"query":{"pages":[{"pageid":7,"title":%q,"revisions":[`+
			`{"revid":1,"parentid":0,"user":"Alice","timestamp":"2008-03-05T10:20:30Z","size":10,"sha1":"x","comment":""}]}]}}`, title)
	}
	return `{}`
}

func parseBody(title string, id int, text string) string {
	return fmt.Sprintf(`{"parse":{"title":%q,"pageid":%d,"text":%q}}`, title, id, text)
}

func newTestApp(t *testing.T) (*App, *wikiStub, *memory.BlobStore) {
	t.Helper()
	stub := &wikiStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.API.Endpoint = srv.URL + "/w/api.php"
	cfg.API.MaxRPS = 0
	cfg.Output.Root = t.TempDir()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Batch.Chunks = 2
	cfg.Batch.RevisionChunks = 2
	cfg.Batch.Workers = 2
	cfg.Years.Start = 2008
	cfg.Years.End = 2008
	cfg.Metrics.Addr = ""
	cfg.DB.DSN = ""

	docs := memory.NewBlobStore()
	a, err := New(context.Background(), cfg, zap.NewNop(), "test",
		WithClock(fixedClock{t: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}),
		WithBlobStore(docs),
		WithSleeper(noSleep{}))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, stub, docs
}

func TestNewCreatesOutputTree(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t)
	for _, dir := range a.cfg.OutputDirs() {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.NotEmpty(t, a.RunID())
}

func TestCollectAndExtract(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t)
	ctx := context.Background()

	path, err := a.CollectLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(a.cfg.Output.Root, "log_links_20240102T030405Z.tsv"), path)

	table, err := tsv.ReadFile(path)
	require.NoError(t, err)
	links, err := tsv.ParseLogLinks(table)
	require.NoError(t, err)
	require.Len(t, links, 1, "undated link is dropped")
	assert.Equal(t, afd.LogDate{Year: 2008, Month: "March", Day: 5}, links[0].LogDate)

	sum, err := a.ExtractCases(ctx, path)
	require.NoError(t, err)
	assert.Len(t, sum.Written, 12)
	assert.Equal(t, 2, sum.Cases)

	march, err := tsv.ReadFile(filepath.Join(a.cfg.CasesDir(), "deletion_cases_2008_03_uncleaned.tsv"))
	require.NoError(t, err)
	records, err := tsv.ParseCases(march)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Foo", records[0].Title())
	assert.True(t, records[1].MultipleNoms)
	require.NotNil(t, records[0].Date)
	assert.Equal(t, 5, records[0].Date.Day)

	again, err := a.ExtractCases(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 12, again.Skipped)
	assert.Empty(t, again.Written)
}

func TestDedupCases(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "a.tsv")
	second := filepath.Join(dir, "b.tsv")
	require.NoError(t, tsv.WriteFile(first, tsv.CaseColumns, tsv.CaseRows([]afd.CaseRecord{
		{LogLink: "l1", CaseTitle: afd.StringPtr("Foo_Bar")},
		{LogLink: "l1"},
	})))
	require.NoError(t, tsv.WriteFile(second, tsv.CaseColumns, tsv.CaseRows([]afd.CaseRecord{
		{LogLink: "l2", CaseTitle: afd.StringPtr(" Foo  Bar "), MultipleNoms: true},
		{LogLink: "l2", CaseTitle: afd.StringPtr("Baz")},
	})))

	path, res, err := a.DedupCases(context.Background(), []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Untitled)
	require.Len(t, res.Cases, 2)
	assert.Equal(t, "Foo Bar", res.Cases[0].CleanedTitle)
	assert.True(t, res.Cases[0].MultipleNoms)

	table, err := tsv.ReadFile(path)
	require.NoError(t, err)
	titles, err := tsv.Column(table, "case_title_cleaned")
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo Bar", "Baz"}, titles)
}

func writeDedupInput(t *testing.T, titles ...string) string {
	t.Helper()
	cases := make([]afd.DedupCase, len(titles))
	for i, title := range titles {
		cases[i] = afd.DedupCase{CaseRecord: afd.CaseRecord{CaseTitle: afd.StringPtr(title)}, CleanedTitle: title}
	}
	path := filepath.Join(t.TempDir(), "dedup.tsv")
	require.NoError(t, tsv.WriteFile(path, tsv.DedupColumns, tsv.DedupRows(cases)))
	return path
}

func readMeta(t *testing.T, path string) []afd.CaseMeta {
	t.Helper()
	table, err := tsv.ReadFile(path)
	require.NoError(t, err)
	rows, err := tsv.ParseCaseMeta(table)
	require.NoError(t, err)
	return rows
}

func TestResolveResumeAndRedo(t *testing.T) {
	t.Parallel()

	a, stub, docs := newTestApp(t)
	ctx := context.Background()
	input := writeDedupInput(t, "Old", "Foo", "Gone", "Broken", "Foo")

	sum, err := a.Resolve(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, batch.Summary{Chunks: 2, Processed: 2, Succeeded: 3, Failed: 1}, sum)

	// Sorted: Broken, Foo | Gone, Old.
	chunk1 := readMeta(t, filepath.Join(a.cfg.MetaDir(), "1_case_meta_0001.tsv"))
	require.Len(t, chunk1, 1)
	assert.Equal(t, "Foo", chunk1[0].CleanedTitle)
	assert.True(t, chunk1[0].PageExists)
	assert.Equal(t, afd.NumericPageID(42), chunk1[0].PageID)

	chunk2 := readMeta(t, filepath.Join(a.cfg.MetaDir(), "1_case_meta_0002.tsv"))
	require.Len(t, chunk2, 2)
	assert.Equal(t, afd.CaseMeta{CleanedTitle: "Gone"}, chunk2[0])
	require.NotNil(t, chunk2[1].ReturnedTitle)
	assert.Equal(t, "New", *chunk2[1].ReturnedTitle)
	assert.True(t, chunk2[1].PageID.Redirected())
	assert.False(t, chunk2[1].PageExists)

	assert.Equal(t, 3, docs.Puts())
	gone, ok := docs.Get(titlecodec.DocumentName("Gone"))
	require.True(t, ok)
	assert.Contains(t, string(gone), afd.DoesNotExistText)

	errorsPath := filepath.Join(a.cfg.MetaDir(), MetaErrorsFile)
	entries, err := batch.ReadErrorLog(errorsPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Chunk)
	assert.Equal(t, "Broken", entries[0].Title)

	calls := stub.count()
	again, err := a.Resolve(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, calls, stub.count(), "finished chunks are not refetched")
	assert.Equal(t, 3, docs.Puts())

	stub.healed.Store(true)
	redo, err := a.Redo(ctx, errorsPath)
	require.NoError(t, err)
	assert.Equal(t, 1, redo.Succeeded)
	redone := readMeta(t, filepath.Join(a.cfg.MetaDir(), "1_redo_case_meta_0001.tsv"))
	require.Len(t, redone, 1)
	assert.Equal(t, "Broken", redone[0].CleanedTitle)
	assert.True(t, redone[0].PageExists)
}

func TestRevisions(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t)
	ctx := context.Background()

	sum, err := a.Revisions(ctx, writeDedupInput(t, "Foo", "Nobody"), RevisionsAFD)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Chunks)
	assert.Equal(t, 1, sum.Failed)

	table, err := tsv.ReadFile(filepath.Join(a.cfg.MetaDir(), "1.5_earliest_revisions_afd_0001.tsv"))
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Wikipedia:Articles for deletion/Foo", table.Get(table.Rows[0], "page_title"))
	assert.Equal(t, "2008-03-05T10:20:30Z", table.Get(table.Rows[0], "earliest_revision_date"))

	table, err = tsv.ReadFile(filepath.Join(a.cfg.MetaDir(), "1.5_earliest_revisions_afd_0002.tsv"))
	require.NoError(t, err)
	require.Len(t, table.Rows, 1, "failed title keeps a row")
	assert.Empty(t, table.Get(table.Rows[0], "earliest_revision_date"))

	entries, err := batch.ReadErrorLog(filepath.Join(a.cfg.MetaDir(), RevisionsErrorFile))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Wikipedia:Articles for deletion/Nobody", entries[0].Title)

	metaInput := filepath.Join(t.TempDir(), "meta.tsv")
	require.NoError(t, tsv.WriteFile(metaInput, tsv.CaseMetaColumns, tsv.CaseMetaRows([]afd.CaseMeta{
		{CleanedTitle: "Foo", PageExists: true, ReturnedTitle: afd.StringPtr("Foo"), PageID: afd.NumericPageID(42)},
		{CleanedTitle: "Old", ReturnedTitle: afd.StringPtr("New"), PageID: afd.RedirectedPageID()},
		{CleanedTitle: "Gone"},
	})))
	sum, err = a.Revisions(ctx, metaInput, RevisionsContent)
	require.NoError(t, err)
	assert.Equal(t, batch.Summary{Chunks: 1, Processed: 1, Succeeded: 1}, sum)

	_, err = a.Revisions(ctx, metaInput, "bogus")
	require.Error(t, err)
}

func TestSortedUnique(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"A", "B", "C"}, sortedUnique([]string{"C", "", "A", "B", "A"}))
	assert.Empty(t, sortedUnique(nil))
}
