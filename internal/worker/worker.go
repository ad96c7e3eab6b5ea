// Package worker implements the per-program fetch and extract task.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

// Config controls Worker behavior.
type Config struct {
	ContentType    string
	ArtifactPrefix string
}

// Worker fetches one detail page and turns it into a record.
type Worker struct {
	fetcher   crawler.Fetcher
	extractor crawler.DetailExtractor
	blobStore crawler.BlobStore
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. blobStore may be nil, in which case raw pages are
// not persisted.
func New(
	fetcher crawler.Fetcher,
	extractor crawler.DetailExtractor,
	blobStore crawler.BlobStore,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:   fetcher,
		extractor: extractor,
		blobStore: blobStore,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process fetches entry.URL and extracts its record. The record carries no
// provenance; the caller attaches it. An all-empty record is reported as
// *crawler.NoContentError.
func (w *Worker) Process(ctx context.Context, runID string, entry crawler.ProgramListing) (crawler.ProgramRecord, error) {
	html, err := w.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		return crawler.ProgramRecord{}, fmt.Errorf("fetch %q: %w", entry.Name, err)
	}
	w.persistPage(ctx, runID, entry, html)

	rec := w.extractor.Extract(html)
	if rec.IsEmpty() {
		return crawler.ProgramRecord{}, &crawler.NoContentError{URL: entry.URL, Name: entry.Name}
	}
	return rec, nil
}

func (w *Worker) persistPage(ctx context.Context, runID string, entry crawler.ProgramListing, html string) {
	if w.blobStore == nil {
		return
	}
	path := ArtifactPath(w.cfg.ArtifactPrefix, runID, "pages", Slug(entry.Name, entry.URL)+".html")
	uri, err := w.blobStore.PutObject(ctx, path, w.cfg.ContentType, strings.NewReader(html))
	if err != nil {
		w.logger.Warn("persist detail page failed",
			zap.String("run_id", runID),
			zap.String("url", entry.URL),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("persisted detail page", zap.String("uri", uri))
}

// ArtifactPath joins the artifact prefix, run directory, and name parts.
func ArtifactPath(prefix, runID string, parts ...string) string {
	segments := make([]string, 0, len(parts)+3)
	if p := strings.Trim(prefix, "/"); p != "" {
		segments = append(segments, p)
	}
	segments = append(segments, "runs", runID)
	segments = append(segments, parts...)
	return strings.Join(segments, "/")
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a filesystem-safe name from a program name. A short hash of
// the URL keeps programs with the same name apart.
func Slug(name, url string) string {
	base := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(base) > 60 {
		base = strings.Trim(base[:60], "-")
	}
	sum := sha256.Sum256([]byte(url))
	suffix := hex.EncodeToString(sum[:4])
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
