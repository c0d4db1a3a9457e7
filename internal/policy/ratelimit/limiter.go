// Package ratelimit caps the request rate of page fetchers with a token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/metrics"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Config holds rate limiter configuration. RPS <= 0 disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	key := strings.ToLower(host)
	if key == "" {
		key = "unknown"
	}
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

// Fetcher throttles an underlying PageFetcher.
type Fetcher struct {
	next    catalog.PageFetcher
	limiter *Limiter
	host    string
}

// Wrap returns a PageFetcher that waits on limiter before each call to next.
// sourceURL selects the bucket; pages of one source share it.
func Wrap(next catalog.PageFetcher, limiter *Limiter, sourceURL string) *Fetcher {
	host := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &Fetcher{next: next, limiter: limiter, host: host}
}

// Fetch implements catalog.PageFetcher.
func (f *Fetcher) Fetch(ctx context.Context, page int) (catalog.PageResult, error) {
	if err := f.limiter.Wait(ctx, f.host); err != nil {
		return catalog.PageResult{}, &catalog.FetchError{
			Kind: catalog.FetchCanceled,
			Page: page,
			Err:  err,
		}
	}
	return f.next.Fetch(ctx, page)
}
