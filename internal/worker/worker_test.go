package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

func TestWorkerProcessSuccess(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://example.edu/mba": "<html>mba</html>"}}
	extractor := &fakeExtractor{record: recordWithTitle("Master of Business Administration")}
	blobs := newFakeBlobStore()
	w := New(fetcher, extractor, blobs, Config{ArtifactPrefix: "/debug/"}, zap.NewNop())

	entry := crawler.ProgramListing{Name: "MBA", URL: "https://example.edu/mba"}
	rec, err := w.Process(context.Background(), "run-1", entry)
	require.NoError(t, err)
	require.Equal(t, "Master of Business Administration", rec.Title)
	require.Empty(t, rec.ScrapedURL)
	require.Equal(t, []string{"<html>mba</html>"}, extractor.seen)

	path := "debug/runs/run-1/pages/" + Slug("MBA", entry.URL) + ".html"
	require.Equal(t, "<html>mba</html>", blobs.get(path))
	require.Equal(t, "text/html; charset=utf-8", blobs.contentTypes[path])
}

func TestWorkerProcessFetchErrorIsWrapped(t *testing.T) {
	t.Parallel()

	fetchErr := &crawler.FetchError{URL: "https://example.edu/x", StatusCode: 500}
	w := New(&fakeFetcher{err: fetchErr}, &fakeExtractor{}, nil, Config{}, nil)

	_, err := w.Process(context.Background(), "run-1", crawler.ProgramListing{Name: "X", URL: "https://example.edu/x"})
	var target *crawler.FetchError
	require.ErrorAs(t, err, &target)
	require.Equal(t, 500, target.StatusCode)
}

func TestWorkerProcessEmptyRecordIsNoContent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://example.edu/empty": "<html></html>"}}
	w := New(fetcher, &fakeExtractor{record: crawler.NewProgramRecord()}, nil, Config{}, nil)

	_, err := w.Process(context.Background(), "run-1", crawler.ProgramListing{Name: "Empty", URL: "https://example.edu/empty"})
	require.ErrorIs(t, err, crawler.ErrNoContent)

	var noContent *crawler.NoContentError
	require.ErrorAs(t, err, &noContent)
	require.Equal(t, "Empty", noContent.Name)
}

func TestWorkerBlobFailureDoesNotFailTask(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"u": "<html>ok</html>"}}
	blobs := newFakeBlobStore()
	blobs.err = errors.New("bucket unavailable")
	w := New(fetcher, &fakeExtractor{record: recordWithTitle("Ok")}, blobs, Config{}, nil)

	rec, err := w.Process(context.Background(), "run-1", crawler.ProgramListing{Name: "Ok", URL: "u"})
	require.NoError(t, err)
	require.Equal(t, "Ok", rec.Title)
}

func TestArtifactPathAndSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "runs/r/listing.html", ArtifactPath("", "r", "listing.html"))
	require.Equal(t, "p/q/runs/r/pages/a.html", ArtifactPath("/p/q/", "r", "pages", "a.html"))

	slug := Slug("Master of Science: Nursing (RN→BSN)", "https://x/a")
	require.Regexp(t, `^master-of-science-nursing-rn-bsn-[0-9a-f]{8}$`, slug)
	require.NotEqual(t, slug, Slug("Master of Science: Nursing (RN→BSN)", "https://x/b"))
	require.Regexp(t, `^[0-9a-f]{8}$`, Slug("!!!", "https://x/c"))
}

func recordWithTitle(title string) crawler.ProgramRecord {
	rec := crawler.NewProgramRecord()
	rec.Title = title
	return rec
}

type fakeFetcher struct {
	pages map[string]string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	body, ok := f.pages[url]
	if !ok {
		return "", &crawler.FetchError{URL: url, StatusCode: 404}
	}
	return body, nil
}

type fakeExtractor struct {
	mu     sync.Mutex
	record crawler.ProgramRecord
	seen   []string
}

func (f *fakeExtractor) Extract(html string) crawler.ProgramRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, html)
	return f.record
}

type fakeBlobStore struct {
	mu           sync.Mutex
	data         map[string]string
	contentTypes map[string]string
	err          error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{data: map[string]string{}, contentTypes: map[string]string{}}
}

func (f *fakeBlobStore) PutObject(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[path] = string(raw)
	f.contentTypes[path] = contentType
	return "memory://" + path, nil
}

func (f *fakeBlobStore) get(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[path]
}
