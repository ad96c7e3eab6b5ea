package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

// Pool is the connection pool and admission gate shared by every fetch in
// one run.
type Pool struct {
	transport *http.Transport
	slots     *semaphore.Weighted
}

// NewPool builds a pool sized from cfg.
func NewPool(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		transport: newHTTPTransport(cfg),
		slots:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

func (p *Pool) acquire(ctx context.Context) error {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fetch slot: %w", err)
	}
	return nil
}

func (p *Pool) release() {
	p.slots.Release(1)
}

// Close drops idle connections. In-flight requests finish on their own.
func (p *Pool) Close() {
	p.transport.CloseIdleConnections()
}

func newHTTPTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          cfg.MaxConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// Session is a Fetcher that owns its Pool.
type Session struct {
	*Fetcher
}

// Close releases the session's pool.
func (s Session) Close() {
	s.pool.Close()
}

// SessionFactory opens a fresh pooled Session per run.
func SessionFactory(cfg Config, logger *zap.Logger) crawler.FetchSessionFactory {
	return func() crawler.FetchSession {
		return Session{Fetcher: New(cfg, NewPool(cfg), logger)}
	}
}
