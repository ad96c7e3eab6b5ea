package crawler

import (
	"context"
	"io"
)

// Fetcher retrieves the body of a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchSession is a Fetcher bound to a connection pool that must be released
// when the run ends.
type FetchSession interface {
	Fetcher
	Close()
}

// FetchSessionFactory opens a new FetchSession for one run.
type FetchSessionFactory func() FetchSession

// ListingParser turns the listing page into program entries.
type ListingParser interface {
	Parse(html string) ([]ProgramListing, error)
}

// DetailExtractor turns a detail page into a record. It never fails.
type DetailExtractor interface {
	Extract(html string) ProgramRecord
}

// IndexPublisher replaces the contents of a search index with records.
type IndexPublisher interface {
	ReplaceAll(ctx context.Context, records []ProgramRecord) (PublishReport, error)
}

// BlobStore persists raw artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Notifier publishes run notifications.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
