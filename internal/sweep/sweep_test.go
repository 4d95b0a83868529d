package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/postsweep/internal/source"
)

var sweepStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return sweepStart }

func postAged(id string, days int) source.Post {
	return source.Post{
		ID:        id,
		CreatedAt: sweepStart.Add(-time.Duration(days) * 24 * time.Hour),
		Text:      "post " + id,
	}
}

// fakeSource serves scripted pages and records every call.
type fakeSource struct {
	pages     []source.Page
	authErr   error
	fetchErrs map[int]error // fetch index -> error
	deleteErr map[string]error
	maxPage   int

	fetches int
	cursors []source.Cursor
	queries []source.Query
	deleted []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) MaxPageSize() int {
	if f.maxPage == 0 {
		return 200
	}
	return f.maxPage
}

func (f *fakeSource) Authenticate(context.Context) (source.Session, error) {
	if f.authErr != nil {
		return source.Session{}, f.authErr
	}
	return source.Session{AccountID: "42", Handle: "@tester"}, nil
}

func (f *fakeSource) page(q source.Query, cursor source.Cursor) (source.Page, error) {
	idx := f.fetches
	f.fetches++
	f.cursors = append(f.cursors, cursor)
	f.queries = append(f.queries, q)
	if err := f.fetchErrs[idx]; err != nil {
		return source.Page{}, err
	}
	if idx >= len(f.pages) {
		return source.Page{}, nil
	}
	page := f.pages[idx]
	if len(page.Posts) > 0 {
		page.Next = source.Cursor(fmt.Sprintf("c%d", idx+1))
	}
	return page, nil
}

func (f *fakeSource) FirstPage(_ context.Context, _ source.Session, q source.Query) (source.Page, error) {
	return f.page(q, "")
}

func (f *fakeSource) NextPage(_ context.Context, _ source.Session, q source.Query, c source.Cursor) (source.Page, error) {
	return f.page(q, c)
}

func (f *fakeSource) Delete(_ context.Context, _ source.Session, p source.Post) error {
	if err := f.deleteErr[p.ID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, p.ID)
	return nil
}

type captureLogger struct {
	lines []string
}

func (c *captureLogger) Debug(interface{}, ...interface{}) {}

func (c *captureLogger) Info(msg interface{}, _ ...interface{}) {
	c.lines = append(c.lines, fmt.Sprint(msg))
}

type captureRecorder struct {
	records []Record
	err     error
}

func (c *captureRecorder) Record(_ context.Context, rec Record) error {
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, rec)
	return nil
}

func page(posts ...source.Post) source.Page {
	return source.Page{Posts: posts}
}

func TestRun_ScenarioMixedAges(t *testing.T) {
	src := &fakeSource{pages: []source.Page{
		page(postAged("a", 10), postAged("b", 200), postAged("c", 180)),
	}}

	res, err := New(src, Options{MaxAgeDays: 180}, WithClock(fixedClock)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", res.Deleted)
	}
	if len(src.deleted) != 1 || src.deleted[0] != "b" {
		t.Errorf("delete calls = %v, want [b]", src.deleted)
	}
	if res.Scanned != 3 {
		t.Errorf("scanned = %d, want 3", res.Scanned)
	}
	if res.Session.AccountID != "42" {
		t.Errorf("session = %+v", res.Session)
	}
}

func TestRun_AllKeptThenEmpty(t *testing.T) {
	src := &fakeSource{pages: []source.Page{
		page(postAged("a", 1), postAged("b", 2)),
	}}

	res, err := New(src, Options{MaxAgeDays: 180}, WithClock(fixedClock)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Deleted != 0 || len(src.deleted) != 0 {
		t.Errorf("deleted = %d, calls = %v, want none", res.Deleted, src.deleted)
	}
	if src.fetches != 2 {
		t.Errorf("fetches = %d, want 2", src.fetches)
	}
}

func TestRun_PaginationTermination(t *testing.T) {
	for n := 0; n <= 4; n++ {
		var pages []source.Page
		for i := 0; i < n; i++ {
			pages = append(pages, page(postAged(fmt.Sprintf("p%d", i), 1)))
		}
		src := &fakeSource{pages: pages}

		res, err := New(src, Options{MaxAgeDays: 30}, WithClock(fixedClock)).Run(context.Background())
		if err != nil {
			t.Fatalf("n=%d: run: %v", n, err)
		}
		if src.fetches != n+1 {
			t.Errorf("n=%d: fetches = %d, want %d", n, src.fetches, n+1)
		}
		if res.Pages != n+1 {
			t.Errorf("n=%d: pages = %d, want %d", n, res.Pages, n+1)
		}
	}
}

func TestRun_CursorsAdvance(t *testing.T) {
	src := &fakeSource{pages: []source.Page{
		page(postAged("a", 1)),
		page(postAged("b", 2)),
	}}

	if _, err := New(src, Options{}, WithClock(fixedClock)).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []source.Cursor{"", "c1", "c2"}
	if len(src.cursors) != len(want) {
		t.Fatalf("cursors = %v, want %v", src.cursors, want)
	}
	for i := range want {
		if src.cursors[i] != want[i] {
			t.Errorf("cursor[%d] = %q, want %q", i, src.cursors[i], want[i])
		}
	}
}

func TestRun_QueryUsesSourceMaximum(t *testing.T) {
	src := &fakeSource{maxPage: 100}
	opts := Options{PageSize: 1000, IncludeReplies: true, IncludeReposts: true}

	if _, err := New(src, opts, WithClock(fixedClock)).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	q := src.queries[0]
	if q.PageSize != 100 {
		t.Errorf("page size = %d, want 100", q.PageSize)
	}
	if !q.IncludeReplies || !q.IncludeReposts {
		t.Errorf("query = %+v, want replies and reposts", q)
	}
}

func TestRun_DryRunIssuesNoDeletes(t *testing.T) {
	src := &fakeSource{pages: []source.Page{
		page(postAged("a", 400), postAged("b", 5)),
		page(postAged("c", 500), postAged("d", 600)),
	}}
	logger := &captureLogger{}
	rec := &captureRecorder{}

	res, err := New(src, Options{MaxAgeDays: 180, DryRun: true},
		WithClock(fixedClock), WithLogger(logger), WithRecorder(rec)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(src.deleted) != 0 {
		t.Errorf("delete calls = %v, want none", src.deleted)
	}
	if res.Deleted != 3 {
		t.Errorf("deleted = %d, want 3", res.Deleted)
	}
	if !res.DryRun {
		t.Error("result should be marked dry run")
	}
	if len(rec.records) != 3 || !rec.records[0].DryRun {
		t.Errorf("records = %+v", rec.records)
	}

	var simulated int
	for _, line := range logger.lines {
		if strings.HasPrefix(line, "would have deleted: ") {
			simulated++
		}
	}
	if simulated != 3 {
		t.Errorf("simulated lines = %d, want 3 (%v)", simulated, logger.lines)
	}
}

func TestRun_AuthFailure(t *testing.T) {
	src := &fakeSource{authErr: errors.New("invalid token")}

	res, err := New(src, Options{}).Run(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if src.fetches != 0 || len(src.deleted) != 0 {
		t.Errorf("fetches = %d, deletes = %d, want none", src.fetches, len(src.deleted))
	}
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero", res)
	}
}

func TestRun_DeleteFailureAborts(t *testing.T) {
	src := &fakeSource{
		pages: []source.Page{
			page(postAged("a", 300), postAged("b", 300), postAged("c", 300)),
			page(postAged("d", 300)),
		},
		deleteErr: map[string]error{"b": errors.New("no status found")},
	}

	res, err := New(src, Options{MaxAgeDays: 180}, WithClock(fixedClock)).Run(context.Background())
	var delErr *DeleteError
	if !errors.As(err, &delErr) {
		t.Fatalf("error = %v, want DeleteError", err)
	}
	if delErr.PostID != "b" {
		t.Errorf("post id = %q, want b", delErr.PostID)
	}
	if len(src.deleted) != 1 || src.deleted[0] != "a" {
		t.Errorf("delete calls = %v, want [a]", src.deleted)
	}
	if src.fetches != 1 {
		t.Errorf("fetches = %d, want 1", src.fetches)
	}
	if res.Deleted != 0 {
		t.Errorf("deleted = %d, want no partial count", res.Deleted)
	}
}

func TestRun_ProgressSurvivesFailure(t *testing.T) {
	src := &fakeSource{
		pages: []source.Page{
			page(postAged("a", 10), postAged("b", 300)),
			page(postAged("c", 300), postAged("d", 300)),
		},
		deleteErr: map[string]error{"d": errors.New("rate limited")},
	}

	sw := New(src, Options{MaxAgeDays: 180}, WithClock(fixedClock))
	res, err := sw.Run(context.Background())
	if err == nil {
		t.Fatal("expected delete failure")
	}
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero", res)
	}

	got := sw.Progress()
	if got.Session.AccountID != "42" {
		t.Errorf("session = %+v", got.Session)
	}
	if got.Scanned != 4 || got.Deleted != 2 || got.Pages != 2 {
		t.Errorf("progress = %+v, want scanned 4, deleted 2, pages 2", got)
	}
}

func TestRun_ProgressMatchesResult(t *testing.T) {
	src := &fakeSource{pages: []source.Page{page(postAged("a", 300), postAged("b", 5))}}

	sw := New(src, Options{MaxAgeDays: 180, DryRun: true}, WithClock(fixedClock))
	res, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sw.Progress() != res {
		t.Errorf("progress = %+v, result = %+v", sw.Progress(), res)
	}
}

func TestRun_FetchFailureAborts(t *testing.T) {
	src := &fakeSource{
		pages: []source.Page{
			page(postAged("a", 300)),
			page(postAged("b", 300)),
		},
		fetchErrs: map[int]error{1: errors.New("rate limited")},
	}

	res, err := New(src, Options{MaxAgeDays: 180}, WithClock(fixedClock)).Run(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if fetchErr.Cursor != "c1" {
		t.Errorf("cursor = %q, want c1", fetchErr.Cursor)
	}
	if res.Deleted != 0 {
		t.Errorf("deleted = %d, want no partial count", res.Deleted)
	}
}

func TestRun_RecorderFailureAborts(t *testing.T) {
	src := &fakeSource{pages: []source.Page{
		page(postAged("a", 300), postAged("b", 300)),
	}}
	rec := &captureRecorder{err: errors.New("disk full")}

	_, err := New(src, Options{MaxAgeDays: 1}, WithClock(fixedClock), WithRecorder(rec)).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(src.deleted) != 1 {
		t.Errorf("delete calls = %v, want 1", src.deleted)
	}
}

func TestRun_CancelledBeforeFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{pages: []source.Page{page(postAged("a", 300))}}

	_, err := New(src, Options{}, WithClock(fixedClock)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if src.fetches != 0 {
		t.Errorf("fetches = %d, want 0", src.fetches)
	}
}

func TestRun_ClockSampledOnce(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		return sweepStart
	}
	src := &fakeSource{pages: []source.Page{
		page(postAged("a", 1), postAged("b", 2), postAged("c", 3)),
	}}

	if _, err := New(src, Options{MaxAgeDays: 30}, WithClock(clock)).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 1 {
		t.Errorf("clock calls = %d, want 1", calls)
	}
}

func TestListingFetchDoesNotMutate(t *testing.T) {
	src := &fakeSource{pages: []source.Page{page(postAged("a", 1))}}
	l := listing{src: src}

	next, p, err := l.fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if l.started || l.cursor != "" {
		t.Errorf("original listing changed: %+v", l)
	}
	if !next.started || next.cursor != p.Next {
		t.Errorf("next listing = %+v, page next = %q", next, p.Next)
	}
}

func TestRecordString(t *testing.T) {
	rec := Record{Post: source.Post{
		ID:        "123",
		CreatedAt: time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
		Text:      "hello",
	}}
	if got, want := rec.String(), "2025-06-01T08:30:00Z/123: hello"; got != want {
		t.Errorf("record = %q, want %q", got, want)
	}
}
