// Package collyfetcher implements catalog.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	// SearchURL is the page-1 endpoint; later pages append /page/N.
	SearchURL    string
	UserAgent    string
	Timeout      time.Duration
	PreviewBytes int
}

// Fetcher implements catalog.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type exchange struct {
	statusCode  int
	contentType string
	body        []byte
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if strings.TrimSpace(cfg.SearchURL) == "" {
		return nil, errors.New("search url is required")
	}
	if _, err := url.ParseRequestURI(cfg.SearchURL); err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PreviewBytes <= 0 {
		cfg.PreviewBytes = DefaultPreviewBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	// Non-2xx responses reach OnResponse so they can be classified.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}, nil
}

// PageURL returns the request URL for page. Page 1 has no page segment.
func (f *Fetcher) PageURL(page int) string {
	base := strings.TrimRight(f.cfg.SearchURL, "/")
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s/page/%d", base, page)
}

// Fetch retrieves and decodes one search page. It never retries.
func (f *Fetcher) Fetch(ctx context.Context, page int) (catalog.PageResult, error) {
	if page < 1 {
		return catalog.PageResult{}, fmt.Errorf("%w: got %d", catalog.ErrInvalidPage, page)
	}
	if err := ctx.Err(); err != nil {
		return catalog.PageResult{}, classifyTransportError(page, err)
	}

	target := f.PageURL(page)
	var (
		result   exchange
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		f.logger.Debug("page fetch failed",
			zap.Int("page", page),
			zap.String("url", target),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return catalog.PageResult{}, classifyTransportError(page, err)
	}

	f.logger.Debug("page fetched",
		zap.Int("page", page),
		zap.String("url", target),
		zap.Int("status", result.statusCode),
		zap.Int("bytes", len(result.body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return classifyResponse(page, result.statusCode, result.contentType, result.body, f.cfg.PreviewBytes)
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	result *exchange,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json, text/javascript, */*; q=0.01")
		r.Headers.Set("X-Requested-With", "XMLHttpRequest")
	})

	hooks.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*result = exchange{
			statusCode:  r.StatusCode,
			contentType: contentType,
			body:        append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
