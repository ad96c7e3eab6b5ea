package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

// Store is an index backend holding Documents.
type Store interface {
	// Name labels the backend in reports and metrics.
	Name() string
	// ListIDs returns the IDs of every document currently stored.
	ListIDs(ctx context.Context) ([]string, error)
	// DeleteAll removes every document.
	DeleteAll(ctx context.Context) error
	// Put stores or overwrites one document.
	Put(ctx context.Context, doc Document) error
}

// BatchStore is implemented by backends that upload many documents in one
// round trip. The returned map holds per-document failures keyed by ID; err
// reports a failure of the whole batch.
type BatchStore interface {
	Store
	PutAll(ctx context.Context, docs []Document) (failures map[string]error, err error)
}

// Closer is implemented by stores holding connections.
type Closer interface {
	Close() error
}

// Publisher replaces the contents of a Store with a set of records.
type Publisher struct {
	store  Store
	logger *zap.Logger
}

var _ crawler.IndexPublisher = (*Publisher)(nil)

// NewPublisher wraps store.
func NewPublisher(store Store, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, logger: logger}
}

// Backend returns the store name.
func (p *Publisher) Backend() string { return p.store.Name() }

// ReplaceAll empties the backend and uploads one document per record.
// Records that map to the same document ID are uploaded once; the first
// occurrence wins. Failing to list or delete existing documents aborts the
// publish with *crawler.IndexPublishError before anything is uploaded.
func (p *Publisher) ReplaceAll(ctx context.Context, records []crawler.ProgramRecord) (crawler.PublishReport, error) {
	report := crawler.PublishReport{Backend: p.store.Name(), Failures: map[string]string{}}

	existingIDs, err := p.store.ListIDs(ctx)
	if err != nil {
		return report, &crawler.IndexPublishError{Backend: report.Backend, Op: "list", Err: err}
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	if err := p.store.DeleteAll(ctx); err != nil {
		return report, &crawler.IndexPublishError{Backend: report.Backend, Op: "delete", Err: err}
	}
	p.logger.Info("index cleared", zap.String("backend", report.Backend), zap.Int("deleted", len(existingIDs)))

	docs := documents(records, p.logger)
	failures, err := p.put(ctx, docs)
	if err != nil {
		return report, &crawler.IndexPublishError{Backend: report.Backend, Op: "upload", Err: err}
	}

	for _, doc := range docs {
		if ferr, failed := failures[doc.ID]; failed {
			report.Failed++
			report.Failures[doc.Name] = ferr.Error()
			continue
		}
		if _, ok := existing[doc.ID]; ok {
			report.Updated++
		} else {
			report.Uploaded++
		}
	}

	p.logger.Info("index publish complete",
		zap.String("backend", report.Backend),
		zap.Int("new", report.Uploaded),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Int("total", len(records)),
	)
	return report, nil
}

func (p *Publisher) put(ctx context.Context, docs []Document) (map[string]error, error) {
	if batch, ok := p.store.(BatchStore); ok {
		failures, err := batch.PutAll(ctx, docs)
		if failures == nil {
			failures = map[string]error{}
		}
		return failures, err
	}
	failures := make(map[string]error)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.store.Put(ctx, doc); err != nil {
			p.logger.Warn("upload document failed", zap.String("name", doc.Name), zap.String("id", doc.ID), zap.Error(err))
			failures[doc.ID] = err
		}
	}
	return failures, nil
}

// Close releases the store's resources, if it holds any.
func (p *Publisher) Close() error {
	if c, ok := p.store.(Closer); ok {
		return c.Close()
	}
	return nil
}

func documents(records []crawler.ProgramRecord, logger *zap.Logger) []Document {
	seen := make(map[string]struct{}, len(records))
	docs := make([]Document, 0, len(records))
	for _, rec := range records {
		doc := NewDocument(rec)
		if _, dup := seen[doc.ID]; dup {
			logger.Warn("skipping duplicate program", zap.String("name", doc.Name), zap.String("id", doc.ID))
			continue
		}
		seen[doc.ID] = struct{}{}
		docs = append(docs, doc)
	}
	return docs
}

// ErrUnknownBackend is returned by factories for unsupported backend names.
var ErrUnknownBackend = errors.New("unknown index backend")

// UnknownBackend wraps ErrUnknownBackend with the offending name.
func UnknownBackend(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
