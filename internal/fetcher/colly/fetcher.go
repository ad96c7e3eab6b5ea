// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/metrics"
)

// DefaultUserAgent identifies the indexer to the sites it scrapes.
const DefaultUserAgent = "Mozilla/5.0 (compatible; scraper)"

// Config controls collector behavior and connection pool sizing.
type Config struct {
	UserAgent       string
	ConnectTimeout  time.Duration
	TotalTimeout    time.Duration
	MaxConns        int
	MaxConnsPerHost int
	MaxInFlight     int
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = 30 * time.Second
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 100
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = 30
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 20
	}
	return c
}

// Fetcher implements crawler.Fetcher using the Colly collector. A Fetcher
// built with a Pool reuses its connections; one built without a Pool opens
// and tears down a private pool on every call.
type Fetcher struct {
	cfg           Config
	pool          *Pool
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   string
	err    error
}

// New builds a Fetcher. pool may be nil.
func New(cfg Config, pool *Pool, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	f := &Fetcher{cfg: cfg, pool: pool, logger: logger}
	if pool != nil {
		f.baseCollector = newCollector(cfg, pool.transport)
	}
	return f
}

// Fetch performs a single GET and returns the body of a 200 response.
// Other statuses yield *crawler.FetchError, deadline overruns yield
// *crawler.TimeoutError, and connection failures yield
// *crawler.TransportError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	pool := f.pool
	base := f.baseCollector
	if pool == nil {
		pool = NewPool(f.cfg)
		defer pool.Close()
		base = newCollector(f.cfg, pool.transport)
	}
	if err := pool.acquire(ctx); err != nil {
		return "", err
	}
	defer pool.release()

	start := time.Now()
	collector := base.Clone()
	collector.Context = ctx
	result := &fetchResult{}
	f.configureCollectorHooks(collector, result)

	body, err := f.runCollector(ctx, collector, url, result)
	metrics.ObserveFetch(crawler.FailureKind(err), time.Since(start))
	if err != nil {
		f.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
		return "", err
	}
	f.logger.Debug("fetched page",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return body, nil
}

func newCollector(cfg Config, transport http.RoundTripper) *colly.Collector {
	c := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.DetectCharset = true
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.TotalTimeout)
	return c
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = string(r.Body)
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		result.err = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *fetchResult,
) (string, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", classify(url, ctx.Err())
	case err := <-done:
		if err == nil {
			err = result.err
		}
		if err != nil {
			return "", classify(url, err)
		}
		if result.status != http.StatusOK {
			return "", &crawler.FetchError{URL: url, StatusCode: result.status}
		}
		return result.body, nil
	}
}

func classify(url string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &crawler.TimeoutError{URL: url, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &crawler.TimeoutError{URL: url, Err: err}
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("fetch %s canceled: %w", url, err)
	default:
		return &crawler.TransportError{URL: url, Err: err}
	}
}
