// Package orchestrator drives one indexing run: fetch the listing, fan out
// detail fetches, aggregate the records, and publish them to the index.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/metrics"
	"github.com/JakeFAU/degree-indexer/internal/worker"
)

const tracerName = "github.com/JakeFAU/degree-indexer/internal/orchestrator"

// DefaultMaxConcurrent bounds detail fetches when Config leaves it unset.
const DefaultMaxConcurrent = 20

// Config controls a run.
type Config struct {
	ListingURL     string
	BaseURL        string
	MaxConcurrent  int
	ArtifactPrefix string
	NotifyTopic    string
}

// Orchestrator runs the scrape pipeline. It is safe to call Run from
// multiple goroutines; each call is an independent run.
type Orchestrator struct {
	cfg       Config
	sessions  crawler.FetchSessionFactory
	parser    crawler.ListingParser
	extractor crawler.DetailExtractor
	index     crawler.IndexPublisher
	blobStore crawler.BlobStore
	notifier  crawler.Notifier
	history   RunRecorder
	tracer    trace.Tracer
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time
}

// RunRecorder keeps run summaries. Record is called when a run starts and
// again when it finishes.
type RunRecorder interface {
	Record(ctx context.Context, summary crawler.RunSummary) error
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithBlobStore persists the listing page, detail pages, and aggregate.
func WithBlobStore(store crawler.BlobStore) Option {
	return func(o *Orchestrator) { o.blobStore = store }
}

// WithNotifier publishes the run summary when the run ends.
func WithNotifier(n crawler.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithHistory records each run's summary.
func WithHistory(h RunRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// New constructs an Orchestrator. index may be nil, in which case runs stop
// at AGGREGATED.
func New(
	cfg Config,
	sessions crawler.FetchSessionFactory,
	parser crawler.ListingParser,
	extractor crawler.DetailExtractor,
	index crawler.IndexPublisher,
	logger *zap.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if strings.TrimSpace(cfg.ListingURL) == "" {
		return nil, &crawler.ConfigError{Key: "scrape.listing_url", Reason: "must be set"}
	}
	if _, err := url.ParseRequestURI(cfg.ListingURL); err != nil {
		return nil, &crawler.ConfigError{Key: "scrape.listing_url", Reason: err.Error()}
	}
	if sessions == nil || parser == nil || extractor == nil {
		return nil, fmt.Errorf("orchestrator requires a fetch session factory, listing parser, and extractor")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:       cfg,
		sessions:  sessions,
		parser:    parser,
		extractor: extractor,
		index:     index,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes one run and returns the aggregated records. It fails only for
// listing-stage errors, which are returned unmodified.
func (o *Orchestrator) Run(ctx context.Context) (crawler.AggregatedResult, error) {
	result, _, err := o.RunWithSummary(ctx)
	return result, err
}

type taskResult struct {
	entry  crawler.ProgramListing
	record crawler.ProgramRecord
	err    error
}

// RunWithSummary behaves like Run and also returns the run summary.
func (o *Orchestrator) RunWithSummary(ctx context.Context) (crawler.AggregatedResult, crawler.RunSummary, error) {
	summary := crawler.RunSummary{
		RunID:      o.newID(),
		State:      crawler.StateInit,
		ListingURL: o.cfg.ListingURL,
		StartedAt:  o.now(),
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("run.id", summary.RunID),
		attribute.String("run.listing_url", o.cfg.ListingURL),
	))
	defer span.End()

	logger := o.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("run started", zap.String("listing_url", o.cfg.ListingURL))
	o.record(ctx, logger, summary)

	session := o.sessions()
	defer session.Close()

	entries, err := o.fetchListing(ctx, session, summary.RunID)
	if err != nil {
		summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing failed")
		o.transition(logger, &summary, crawler.StateFailed)
		o.finish(ctx, logger, &summary)
		return nil, summary, err
	}
	summary.Listed = len(entries)
	o.transition(logger, &summary, crawler.StateListingFetched)

	// Detail fetches are bounded by the fetcher's own timeout, not by the
	// caller's deadline.
	detached := context.WithoutCancel(ctx)

	o.transition(logger, &summary, crawler.StateDetailsInFlight)
	results := o.scrapeDetails(detached, session, summary.RunID, entries)

	aggregate := o.aggregate(logger, results)
	summary.Succeeded = len(aggregate)
	summary.Dropped = len(entries) - len(aggregate)
	o.transition(logger, &summary, crawler.StateAggregated)
	o.persistAggregate(detached, logger, summary.RunID, aggregate)

	if o.index != nil {
		if err := ctx.Err(); err != nil {
			// Replacing the index is destructive; a cancelled run leaves it alone.
			summary.PublishError = fmt.Sprintf("run cancelled before publish: %v", err)
			logger.Warn("skipping index publish", zap.Error(err))
		} else {
			o.publish(detached, logger, &summary, aggregate)
		}
	}
	o.finish(detached, logger, &summary)
	span.SetAttributes(
		attribute.String("run.state", string(summary.State)),
		attribute.Int("run.listed", summary.Listed),
		attribute.Int("run.succeeded", summary.Succeeded),
	)
	return aggregate, summary, nil
}

func (o *Orchestrator) fetchListing(ctx context.Context, session crawler.FetchSession, runID string) ([]crawler.ProgramListing, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.listing")
	defer span.End()

	html, err := session.Fetch(ctx, o.cfg.ListingURL)
	if err != nil {
		return nil, err
	}
	o.persist(ctx, worker.ArtifactPath(o.cfg.ArtifactPrefix, runID, "listing.html"), "text/html; charset=utf-8", []byte(html))

	entries, err := o.parser.Parse(html)
	if err != nil {
		return nil, err
	}
	return o.resolveEntries(entries), nil
}

// resolveEntries makes site-relative listing URLs absolute against BaseURL,
// or the listing URL when no base is configured.
func (o *Orchestrator) resolveEntries(entries []crawler.ProgramListing) []crawler.ProgramListing {
	baseRaw := o.cfg.BaseURL
	if baseRaw == "" {
		baseRaw = o.cfg.ListingURL
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		return entries
	}
	out := make([]crawler.ProgramListing, 0, len(entries))
	for _, e := range entries {
		if ref, err := url.Parse(e.URL); err == nil {
			e.URL = base.ResolveReference(ref).String()
		}
		out = append(out, e)
	}
	return out
}

// scrapeDetails runs one task per entry with at most MaxConcurrent in
// flight. Task failures are captured in the result slot, never returned.
func (o *Orchestrator) scrapeDetails(
	ctx context.Context,
	session crawler.FetchSession,
	runID string,
	entries []crawler.ProgramListing,
) []taskResult {
	w := worker.New(session, o.extractor, o.blobStore, worker.Config{ArtifactPrefix: o.cfg.ArtifactPrefix}, o.logger)
	results := make([]taskResult, len(entries))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = o.runTask(ctx, w, runID, entry)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) runTask(ctx context.Context, w *worker.Worker, runID string, entry crawler.ProgramListing) (res taskResult) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.detail", trace.WithAttributes(
		attribute.String("program.name", entry.Name),
		attribute.String("program.url", entry.URL),
	))
	res.entry = entry
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("task panicked: %v", r)
		}
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, crawler.FailureKind(res.err))
		}
		span.End()
	}()
	res.record, res.err = w.Process(ctx, runID, entry)
	return res
}

// aggregate keeps successful records, attaches provenance, and sorts them by
// program name.
func (o *Orchestrator) aggregate(logger *zap.Logger, results []taskResult) crawler.AggregatedResult {
	out := make(crawler.AggregatedResult, 0, len(results))
	for _, res := range results {
		kind := crawler.FailureKind(res.err)
		metrics.ObserveDetail(kind)
		if res.err != nil {
			logger.Warn("dropping program",
				zap.String("name", res.entry.Name),
				zap.String("url", res.entry.URL),
				zap.String("reason", kind),
				zap.Error(res.err),
			)
			continue
		}
		rec := res.record
		rec.ScrapedURL = res.entry.URL
		rec.ScrapedDegreeName = res.entry.Name
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScrapedDegreeName != out[j].ScrapedDegreeName {
			return out[i].ScrapedDegreeName < out[j].ScrapedDegreeName
		}
		return out[i].ScrapedURL < out[j].ScrapedURL
	})
	return out
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, summary *crawler.RunSummary, records crawler.AggregatedResult) {
	ctx, span := o.tracer.Start(ctx, "index.replace_all", trace.WithAttributes(
		attribute.Int("index.records", len(records)),
	))
	defer span.End()

	report, err := o.index.ReplaceAll(ctx, records)
	metrics.ObservePublish(report, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		summary.PublishError = err.Error()
		logger.Warn("index publish failed; scrape results kept", zap.Error(err))
		return
	}
	summary.Publish = &report
	if report.Failed > 0 {
		logger.Warn("index publish had per-document failures",
			zap.Int("failed", report.Failed),
			zap.Any("failures", report.Failures),
		)
	}
	o.transition(logger, summary, crawler.StatePublished)
}

func (o *Orchestrator) persistAggregate(ctx context.Context, logger *zap.Logger, runID string, records crawler.AggregatedResult) {
	if o.blobStore == nil {
		return
	}
	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		logger.Warn("encode aggregate failed", zap.Error(err))
		return
	}
	o.persist(ctx, worker.ArtifactPath(o.cfg.ArtifactPrefix, runID, "aggregate.json"), "application/json", body)
}

func (o *Orchestrator) persist(ctx context.Context, path, contentType string, body []byte) {
	if o.blobStore == nil {
		return
	}
	if _, err := o.blobStore.PutObject(ctx, path, contentType, bytes.NewReader(body)); err != nil {
		o.logger.Warn("persist artifact failed", zap.String("path", path), zap.Error(err))
	}
}

func (o *Orchestrator) transition(logger *zap.Logger, summary *crawler.RunSummary, next crawler.RunState) {
	logger.Debug("run state change",
		zap.String("from", string(summary.State)),
		zap.String("to", string(next)),
	)
	summary.State = next
}

func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, summary *crawler.RunSummary) {
	summary.FinishedAt = o.now()
	metrics.ObserveRun(string(summary.State), summary.Duration())
	logger.Info("run finished",
		zap.String("state", string(summary.State)),
		zap.Int("listed", summary.Listed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("dropped", summary.Dropped),
		zap.Duration("duration", summary.Duration()),
	)
	o.record(ctx, logger, *summary)
	if o.notifier == nil || o.cfg.NotifyTopic == "" {
		return
	}
	if _, err := o.notifier.Publish(ctx, o.cfg.NotifyTopic, summary); err != nil {
		logger.Warn("publish run summary failed", zap.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, logger *zap.Logger, summary crawler.RunSummary) {
	if o.history == nil {
		return
	}
	if err := o.history.Record(ctx, summary); err != nil {
		logger.Warn("record run summary failed", zap.Error(err))
	}
}
