// Package app builds and holds the long-lived services for one process: the
// orchestrator, its index and artifact backends, the notifier, and the HTTP
// boundary's limiters and run history.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/api"
	"github.com/JakeFAU/degree-indexer/internal/config"
	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/extract"
	collyfetcher "github.com/JakeFAU/degree-indexer/internal/fetcher/colly"
	"github.com/JakeFAU/degree-indexer/internal/index"
	"github.com/JakeFAU/degree-indexer/internal/index/blobindex"
	"github.com/JakeFAU/degree-indexer/internal/index/elastic"
	"github.com/JakeFAU/degree-indexer/internal/index/postgres"
	"github.com/JakeFAU/degree-indexer/internal/listing"
	"github.com/JakeFAU/degree-indexer/internal/metrics"
	"github.com/JakeFAU/degree-indexer/internal/orchestrator"
	"github.com/JakeFAU/degree-indexer/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/degree-indexer/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/degree-indexer/internal/publisher/pubsub"
	"github.com/JakeFAU/degree-indexer/internal/storage"
	"github.com/JakeFAU/degree-indexer/internal/storage/gcs"
	"github.com/JakeFAU/degree-indexer/internal/storage/local"
	"github.com/JakeFAU/degree-indexer/internal/storage/memory"
	runmemory "github.com/JakeFAU/degree-indexer/internal/store/memory"
	"github.com/JakeFAU/degree-indexer/internal/telemetry"
)

const memoryIndexPrefix = "index"

// App holds the shared services built from one Config.
type App struct {
	cfg           config.Config
	logger        *zap.Logger
	orchestrator  *orchestrator.Orchestrator
	index         *index.Publisher
	artifacts     storage.ObjectStore
	notifier      crawler.Notifier
	history       *runmemory.RunRepository
	chatLimiter   *ratelimit.Limiter
	scrapeLimiter *ratelimit.Limiter
	gcsClient     *gcsclient.Client
	closers       []func() error
}

// New builds every service cfg asks for and fails fast if one cannot start.
// Close releases whatever was built, including on a partial failure.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		cfg:           cfg,
		logger:        logger,
		history:       runmemory.New(runmemory.DefaultCapacity),
		chatLimiter:   ratelimit.New(cfg.RateLimit.Chat),
		scrapeLimiter: ratelimit.New(cfg.RateLimit.Scrape),
	}

	if err := a.buildTracing(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildIndex(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildArtifacts(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildNotifier(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildOrchestrator(); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("index_backend", a.IndexBackend()),
		zap.Bool("artifacts", a.artifacts != nil),
		zap.Bool("notify", a.notifier != nil),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)
	return a, nil
}

func (a *App) buildTracing(ctx context.Context) error {
	if !a.cfg.Tracing.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})
	return nil
}

func (a *App) buildIndex(ctx context.Context) error {
	cfg := a.cfg.Index
	var store index.Store
	switch cfg.Backend {
	case config.BackendNone:
		return nil
	case config.BackendMemory:
		s, err := blobindex.New(config.BackendMemory, memory.NewBlobStore(), memoryIndexPrefix)
		if err != nil {
			return fmt.Errorf("init memory index: %w", err)
		}
		store = s
	case config.BackendLocal:
		objects, err := local.New(cfg.Local)
		if err != nil {
			return fmt.Errorf("init local index: %w", err)
		}
		s, err := blobindex.New(config.BackendLocal, objects, "")
		if err != nil {
			return fmt.Errorf("init local index: %w", err)
		}
		store = s
	case config.BackendGCS:
		client, err := a.storageClient(ctx)
		if err != nil {
			return err
		}
		objects, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs index: %w", err)
		}
		s, err := blobindex.New(config.BackendGCS, objects, cfg.GCS.Prefix)
		if err != nil {
			return fmt.Errorf("init gcs index: %w", err)
		}
		store = s
	case config.BackendElasticsearch:
		s, err := elastic.New(cfg.Elasticsearch)
		if err != nil {
			return fmt.Errorf("init elasticsearch index: %w", err)
		}
		store = s
	case config.BackendPostgres:
		s, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("init postgres index: %w", err)
		}
		store = s
	default:
		return index.UnknownBackend(cfg.Backend)
	}
	a.index = index.NewPublisher(store, a.logger.Named("index"))
	a.closers = append(a.closers, a.index.Close)
	return nil
}

func (a *App) buildArtifacts(ctx context.Context) error {
	cfg := a.cfg.Artifacts
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Backend {
	case config.BackendMemory:
		a.artifacts = memory.NewBlobStore()
	case config.BackendLocal:
		s, err := local.New(cfg.Local)
		if err != nil {
			return fmt.Errorf("init local artifacts: %w", err)
		}
		a.artifacts = s
	case config.BackendGCS:
		client, err := a.storageClient(ctx)
		if err != nil {
			return err
		}
		s, err := gcs.New(client, cfg.GCS)
		if err != nil {
			return fmt.Errorf("init gcs artifacts: %w", err)
		}
		a.artifacts = s
	default:
		return fmt.Errorf("unknown artifacts backend %q", cfg.Backend)
	}
	return nil
}

func (a *App) buildNotifier(ctx context.Context) error {
	cfg := a.cfg.Notify
	switch cfg.Backend {
	case config.BackendNone:
	case config.BackendMemory:
		a.notifier = memorypublisher.New()
	case config.BackendPubSub:
		p, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.notifier = p
		a.closers = append(a.closers, p.Close)
	default:
		return fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
	return nil
}

func (a *App) buildOrchestrator() error {
	sc := a.cfg.Scrape
	sessions := collyfetcher.SessionFactory(collyfetcher.Config{
		UserAgent:       sc.UserAgent,
		ConnectTimeout:  a.cfg.HTTP.ConnectTimeout,
		TotalTimeout:    a.cfg.HTTP.TotalTimeout,
		MaxConns:        a.cfg.HTTP.MaxConns,
		MaxConnsPerHost: a.cfg.HTTP.MaxConnsPerHost,
		MaxInFlight:     sc.MaxConcurrentRequests,
	}, a.logger.Named("fetcher"))

	parser := listing.NewParser(listing.Hint{
		Selector:          sc.ListingSelector,
		SecondarySelector: sc.SecondarySelector,
		Keywords:          sc.ListingKeywords,
	}, a.logger.Named("listing"))

	profile := a.cfg.Extract.Apply(extract.DefaultProfile())
	profile.BaseURL = sc.BaseURL
	if profile.BaseURL == "" {
		profile.BaseURL = sc.ListingURL
	}
	extractor := extract.New(profile, a.logger.Named("extract"))

	opts := []orchestrator.Option{orchestrator.WithHistory(a.history)}
	if a.artifacts != nil {
		opts = append(opts, orchestrator.WithBlobStore(a.artifacts))
	}
	if a.notifier != nil {
		opts = append(opts, orchestrator.WithNotifier(a.notifier))
	}
	var publisher crawler.IndexPublisher
	if a.index != nil {
		publisher = a.index
	}

	o, err := orchestrator.New(orchestrator.Config{
		ListingURL:     sc.ListingURL,
		BaseURL:        sc.BaseURL,
		MaxConcurrent:  sc.MaxConcurrentRequests,
		ArtifactPrefix: a.cfg.Artifacts.Prefix,
		NotifyTopic:    a.cfg.Notify.Topic,
	}, sessions, parser, extractor, publisher, a.logger.Named("orchestrator"), opts...)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	a.orchestrator = o
	return nil
}

func (a *App) storageClient(ctx context.Context) (*gcsclient.Client, error) {
	if a.gcsClient != nil {
		return a.gcsClient, nil
	}
	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	a.gcsClient = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Orchestrator returns the run pipeline.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// Notifier returns the run notifier, or nil when notifications are off.
func (a *App) Notifier() crawler.Notifier { return a.notifier }

// Artifacts returns the debug artifact store, or nil when disabled.
func (a *App) Artifacts() storage.ObjectStore { return a.artifacts }

// IndexBackend names the configured index backend.
func (a *App) IndexBackend() string {
	if a.index == nil {
		return config.BackendNone
	}
	return a.index.Backend()
}

// Server builds the HTTP boundary over the App's services.
func (a *App) Server() *api.Server {
	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	return api.NewServer(api.Options{
		Scraper:           a.orchestrator,
		History:           a.history,
		ChatLimiter:       a.chatLimiter,
		ScrapeLimiter:     a.scrapeLimiter,
		TrustForwardedFor: a.cfg.RateLimit.TrustForwardedFor,
		APIKey:            apiKey,
		RequestTimeout:    a.cfg.Server.RequestTimeout,
		Tracing:           a.cfg.Tracing.Enabled,
	}, a.logger.Named("api"))
}

// SweepLimiters drops idle rate-limit buckets every interval until ctx ends.
func (a *App) SweepLimiters(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := a.chatLimiter.Cleanup() + a.scrapeLimiter.Cleanup()
			if removed > 0 {
				a.logger.Debug("swept idle rate-limit buckets", zap.Int("removed", removed))
			}
		}
	}
}

// Close releases backends in reverse order of construction.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}
