package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/store/memory"
)

const listingURL = "https://example.edu/degrees"

func TestRunDropsFailedDetailsAndSortsByName(t *testing.T) {
	t.Parallel()

	session := newFakeSession(map[string]string{
		listingURL:                           "<listing/>",
		"https://example.edu/programs/zoo":   "Zoology, BS",
		"https://example.edu/programs/art":   "Art, BFA",
		"https://example.edu/programs/biolo": "unused",
	})
	session.errs["https://example.edu/programs/biolo"] = &crawler.TransportError{URL: "biolo", Err: errors.New("connection reset")}
	parser := &fakeParser{entries: []crawler.ProgramListing{
		{Name: "Zoology, BS", URL: "/programs/zoo"},
		{Name: "Biology, BS", URL: "/programs/biolo"},
		{Name: "Art, BFA", URL: "https://example.edu/programs/art"},
	}}
	index := &fakeIndex{}
	blobs := newFakeBlobStore()
	notifier := &fakeNotifier{}

	o := newTestOrchestrator(t, Config{ListingURL: listingURL, BaseURL: "https://example.edu", NotifyTopic: "runs"},
		session, parser, index, WithBlobStore(blobs), WithNotifier(notifier))

	records, summary, err := o.RunWithSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Art, BFA", records[0].ScrapedDegreeName)
	require.Equal(t, "https://example.edu/programs/art", records[0].ScrapedURL)
	require.Equal(t, "Art, BFA", records[0].Title)
	require.Equal(t, "Zoology, BS", records[1].ScrapedDegreeName)
	require.Equal(t, "https://example.edu/programs/zoo", records[1].ScrapedURL)

	require.Equal(t, crawler.StatePublished, summary.State)
	require.Equal(t, "run-1", summary.RunID)
	require.Equal(t, 3, summary.Listed)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Dropped)
	require.NotNil(t, summary.Publish)
	require.Equal(t, 2, summary.Publish.Uploaded)
	require.Equal(t, 2*time.Second, summary.Duration())

	require.Len(t, index.published, 2)
	require.EqualValues(t, 1, session.closed.Load())
	require.True(t, blobs.has("runs/run-1/listing.html"))
	require.True(t, blobs.has("runs/run-1/aggregate.json"))

	require.Len(t, notifier.payloads, 1)
	sent, ok := notifier.payloads[0].(*crawler.RunSummary)
	require.True(t, ok)
	require.Equal(t, crawler.StatePublished, sent.State)
}

func TestRunEmptyListingFailsWithoutDetailFetches(t *testing.T) {
	t.Parallel()

	session := newFakeSession(map[string]string{listingURL: "<html></html>"})
	emptyErr := &crawler.EmptyListingError{Matchers: []string{"selector", "secondary", "keyword", "first-list"}}
	index := &fakeIndex{}
	o := newTestOrchestrator(t, Config{ListingURL: listingURL}, session, &fakeParser{err: emptyErr}, index)

	records, summary, err := o.RunWithSummary(context.Background())
	require.Nil(t, records)
	require.ErrorIs(t, err, crawler.ErrEmptyListing)
	require.Same(t, emptyErr, err)
	require.Equal(t, crawler.StateFailed, summary.State)
	require.NotEmpty(t, summary.Error)
	require.EqualValues(t, 1, session.fetches.Load())
	require.EqualValues(t, 1, session.closed.Load())
	require.Nil(t, index.published)
}

func TestRunListingFetchErrorIsReturnedUnmodified(t *testing.T) {
	t.Parallel()

	session := newFakeSession(nil)
	fetchErr := &crawler.FetchError{URL: listingURL, StatusCode: 503}
	session.errs[listingURL] = fetchErr
	o := newTestOrchestrator(t, Config{ListingURL: listingURL}, session, &fakeParser{}, nil)

	_, err := o.Run(context.Background())
	var target *crawler.FetchError
	require.ErrorAs(t, err, &target)
	require.Same(t, fetchErr, target)
	require.EqualValues(t, 1, session.closed.Load())
}

func TestRunEmitsSpansPerStage(t *testing.T) {
	t.Parallel()

	session := newFakeSession(map[string]string{
		listingURL:                        "<listing/>",
		"https://example.edu/programs/ok": "Ok, BS",
	})
	parser := &fakeParser{entries: []crawler.ProgramListing{
		{Name: "Ok, BS", URL: "/programs/ok"},
		{Name: "Gone, BS", URL: "/programs/gone"},
	}}
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	o := newTestOrchestrator(t, Config{ListingURL: listingURL}, session, parser, &fakeIndex{},
		WithTracer(tp.Tracer("test")))

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		byName[span.Name()] = append(byName[span.Name()], span)
	}
	require.Len(t, byName["orchestrator.run"], 1)
	require.Len(t, byName["orchestrator.listing"], 1)
	require.Len(t, byName["orchestrator.detail"], 2)
	require.Len(t, byName["index.replace_all"], 1)

	root := byName["orchestrator.run"][0]
	for _, name := range []string{"orchestrator.listing", "orchestrator.detail", "index.replace_all"} {
		for _, span := range byName[name] {
			require.Equal(t, root.SpanContext().SpanID(), span.Parent().SpanID(), name)
		}
	}

	var failed int
	for _, span := range byName["orchestrator.detail"] {
		if span.Status().Code == codes.Error {
			failed++
			require.Equal(t, "http_status", span.Status().Description)
		}
	}
	require.Equal(t, 1, failed)
}

func TestRunCancelledAfterListingKeepsIndexIntact(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newFakeSession(map[string]string{
		listingURL:                          "<listing/>",
		"https://example.edu/programs/art":  "Art, BFA",
		"https://example.edu/programs/math": "Mathematics, BS",
	})
	session.delay = 5 * time.Millisecond
	session.afterFetch = func(url string) {
		if url == listingURL {
			cancel()
		}
	}
	parser := &fakeParser{entries: []crawler.ProgramListing{
		{Name: "Art, BFA", URL: "/programs/art"},
		{Name: "Mathematics, BS", URL: "/programs/math"},
	}}
	previous := []crawler.ProgramRecord{{Title: "Existing"}}
	index := &fakeIndex{published: previous}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, Config{ListingURL: listingURL, NotifyTopic: "runs"}, session, parser, index,
		WithNotifier(notifier))

	records, summary, err := o.RunWithSummary(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, crawler.StateAggregated, summary.State)
	require.Contains(t, summary.PublishError, "cancelled")
	require.Nil(t, summary.Publish)

	require.Zero(t, index.calls)
	require.Equal(t, previous, index.published)
	require.Len(t, notifier.payloads, 1)
	require.EqualValues(t, 1, session.closed.Load())
}

func TestRunRecordsHistoryAtStartAndFinish(t *testing.T) {
	t.Parallel()

	session := newFakeSession(nil)
	session.errs[listingURL] = &crawler.TransportError{URL: listingURL, Err: errors.New("refused")}
	history := &recordingHistory{}
	o := newTestOrchestrator(t, Config{ListingURL: listingURL}, session, &fakeParser{}, nil, WithHistory(history))

	_, err := o.Run(context.Background())
	require.Error(t, err)
	require.Len(t, history.states, 2)
	require.Equal(t, []crawler.RunState{crawler.StateInit, crawler.StateFailed}, history.states)

	repo := memory.New(5)
	o = newTestOrchestrator(t, Config{ListingURL: listingURL}, newFakeSession(nil), &fakeParser{}, nil, WithHistory(repo))
	_, _ = o.Run(context.Background())
	got, err := repo.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, crawler.StateFailed, got.State)
	require.False(t, got.FinishedAt.IsZero())
}

func TestRunPublishFailureKeepsResults(t *testing.T) {
	t.Parallel()

	session := newFakeSession(map[string]string{
		listingURL:                       "<listing/>",
		"https://example.edu/programs/a": "Accounting, BBA",
	})
	parser := &fakeParser{entries: []crawler.ProgramListing{{Name: "Accounting, BBA", URL: "/programs/a"}}}
	index := &fakeIndex{err: &crawler.IndexPublishError{Backend: "memory", Op: "list", Err: errors.New("down")}}
	o := newTestOrchestrator(t, Config{ListingURL: listingURL}, session, parser, index)

	records, summary, err := o.RunWithSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, crawler.StateAggregated, summary.State)
	require.Contains(t, summary.PublishError, "down")
	require.Nil(t, summary.Publish)
}

func TestRunWithoutIndexStopsAtAggregated(t *testing.T) {
	t.Parallel()

	session := newFakeSession(map[string]string{
		listingURL:                     "<listing/>",
		"https://example.edu/degree/x": "X Degree",
	})
	parser := &fakeParser{entries: []crawler.ProgramListing{{Name: "X Degree", URL: "degree/x"}}}
	o := newTestOrchestrator(t, Config{ListingURL: listingURL}, session, parser, nil)

	records, summary, err := o.RunWithSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "https://example.edu/degree/x", records[0].ScrapedURL)
	require.Equal(t, crawler.StateAggregated, summary.State)
}

func TestRunBoundsDetailConcurrency(t *testing.T) {
	t.Parallel()

	pages := map[string]string{listingURL: "<listing/>"}
	entries := make([]crawler.ProgramListing, 0, 12)
	for i := range 12 {
		u := fmt.Sprintf("https://example.edu/p/%d", i)
		pages[u] = fmt.Sprintf("Program %02d", i)
		entries = append(entries, crawler.ProgramListing{Name: pages[u], URL: u})
	}
	session := newFakeSession(pages)
	session.delay = 20 * time.Millisecond
	o := newTestOrchestrator(t, Config{ListingURL: listingURL, MaxConcurrent: 3}, session, &fakeParser{entries: entries}, nil)

	records, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 12)
	require.LessOrEqual(t, session.peak.Load(), int32(3))
	require.Equal(t, "Program 00", records[0].ScrapedDegreeName)
	require.Equal(t, "Program 11", records[11].ScrapedDegreeName)
}

func TestRunRecoversFromExtractorPanic(t *testing.T) {
	t.Parallel()

	session := newFakeSession(map[string]string{
		listingURL:               "<listing/>",
		"https://example.edu/ok": "Fine Program",
		"https://example.edu/pn": "panic",
	})
	parser := &fakeParser{entries: []crawler.ProgramListing{
		{Name: "Fine Program", URL: "/ok"},
		{Name: "Explodes", URL: "/pn"},
	}}
	o := newTestOrchestrator(t, Config{ListingURL: listingURL}, session, parser, nil)

	records, summary, err := o.RunWithSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, summary.Dropped)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	factory := func() crawler.FetchSession { return newFakeSession(nil) }
	_, err := New(Config{}, factory, &fakeParser{}, titleExtractor{}, nil, nil)
	var cfgErr *crawler.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "scrape.listing_url", cfgErr.Key)

	_, err = New(Config{ListingURL: "not a url"}, factory, &fakeParser{}, titleExtractor{}, nil, nil)
	require.ErrorAs(t, err, &cfgErr)

	_, err = New(Config{ListingURL: listingURL}, nil, &fakeParser{}, titleExtractor{}, nil, nil)
	require.Error(t, err)
}

func newTestOrchestrator(
	t *testing.T,
	cfg Config,
	session *fakeSession,
	parser crawler.ListingParser,
	index *fakeIndex,
	opts ...Option,
) *Orchestrator {
	t.Helper()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var ticks atomic.Int32
	opts = append(opts,
		WithIDGenerator(func() string { return "run-1" }),
		WithClock(func() time.Time {
			return start.Add(time.Duration(ticks.Add(1)-1) * 2 * time.Second)
		}),
	)
	var publisher crawler.IndexPublisher
	if index != nil {
		publisher = index
	}
	o, err := New(cfg, func() crawler.FetchSession { return session }, parser, titleExtractor{}, publisher, zap.NewNop(), opts...)
	require.NoError(t, err)
	return o
}

type fakeSession struct {
	pages   map[string]string
	errs    map[string]error
	delay   time.Duration
	fetches atomic.Int32
	closed  atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32

	// afterFetch runs once a fetch has resolved.
	afterFetch func(url string)
}

func newFakeSession(pages map[string]string) *fakeSession {
	return &fakeSession{pages: pages, errs: map[string]error{}}
}

func (s *fakeSession) Fetch(ctx context.Context, url string) (string, error) {
	s.fetches.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err, ok := s.errs[url]; ok {
		return "", err
	}
	if s.afterFetch != nil {
		defer s.afterFetch(url)
	}
	body, ok := s.pages[url]
	if !ok {
		return "", &crawler.FetchError{URL: url, StatusCode: 404}
	}
	return body, nil
}

func (s *fakeSession) Close() { s.closed.Add(1) }

type fakeParser struct {
	entries []crawler.ProgramListing
	err     error
}

func (p *fakeParser) Parse(string) ([]crawler.ProgramListing, error) {
	if p.err != nil {
		return nil, p.err
	}
	return append([]crawler.ProgramListing(nil), p.entries...), nil
}

// titleExtractor uses the page body as the title.
type titleExtractor struct{}

func (titleExtractor) Extract(html string) crawler.ProgramRecord {
	if html == "panic" {
		panic("boom")
	}
	rec := crawler.NewProgramRecord()
	rec.Title = html
	return rec
}

type fakeIndex struct {
	mu        sync.Mutex
	published []crawler.ProgramRecord
	calls     int
	err       error
}

func (f *fakeIndex) ReplaceAll(_ context.Context, records []crawler.ProgramRecord) (crawler.PublishReport, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return crawler.PublishReport{Backend: "fake"}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append([]crawler.ProgramRecord(nil), records...)
	return crawler.PublishReport{Backend: "fake", Uploaded: len(records), Failures: map[string]string{}}, nil
}

type fakeBlobStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore { return &fakeBlobStore{data: map[string][]byte{}} }

func (f *fakeBlobStore) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[path] = raw
	return "memory://" + path, nil
}

func (f *fakeBlobStore) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[path]
	return ok
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []any
}

func (f *fakeNotifier) Publish(_ context.Context, _ string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return fmt.Sprintf("msg-%d", len(f.payloads)), nil
}

type recordingHistory struct {
	mu     sync.Mutex
	states []crawler.RunState
}

func (h *recordingHistory) Record(_ context.Context, summary crawler.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, summary.State)
	return nil
}
