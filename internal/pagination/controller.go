// Package pagination drives a PageFetcher and an Extractor across search
// pages until the catalog signals its end.
//
// A run walks pages strictly in order. Page 1 is authoritative for the
// reported total count and the page size; a run ends on the last page
// implied by those, on the first page without identifiers, on the page
// ceiling, on a fetch error, or on cancellation. Every ending except a
// contract violation yields the identifiers accumulated so far.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/metrics"
	"github.com/JakeFAU/catalog-reconciler/internal/telemetry"
)

// ErrInvalidOptions is returned when Collect is called with unusable options.
var ErrInvalidOptions = errors.New("invalid collection options")

// PageProgress is reported to Options.OnPage after every processed page.
type PageProgress struct {
	Page               int
	Extracted          int
	New                int
	Accumulated        int
	ReportedTotalCount int
	LastPage           int
}

// Options controls one collection run.
type Options struct {
	MaxPages        int
	InterPageDelay  time.Duration
	OnPage          func(PageProgress)
	DetailedLogging bool
}

// Controller runs collections. It holds no per-run state and may be reused.
type Controller struct {
	fetcher   catalog.PageFetcher
	extractor catalog.Extractor
	clock     catalog.Clock
	logger    *zap.Logger
}

// New wires a Controller.
func New(fetcher catalog.PageFetcher, extractor catalog.Extractor, clock catalog.Clock, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:   fetcher,
		extractor: extractor,
		clock:     clock,
		logger:    logger,
	}
}

// Collect fetches pages starting at 1 and returns the de-duplicated
// identifiers in first-seen order. The error is non-nil only for invalid
// options; fetch failures and cancellation end the run with a partial result.
func (c *Controller) Collect(ctx context.Context, opts Options) (catalog.CollectionResult, error) {
	if opts.MaxPages < 1 {
		return catalog.CollectionResult{}, fmt.Errorf("%w: max pages %d", ErrInvalidOptions, opts.MaxPages)
	}
	if opts.InterPageDelay < 0 {
		return catalog.CollectionResult{}, fmt.Errorf("%w: negative inter-page delay %s", ErrInvalidOptions, opts.InterPageDelay)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "pagination.Collect",
		trace.WithAttributes(attribute.Int("max_pages", opts.MaxPages)))
	defer span.End()

	res := catalog.CollectionResult{
		PageSize:  catalog.DefaultItemsPerPage,
		StartedAt: c.clock.Now(),
	}
	acc := catalog.NewIdentifierSet()

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			res.StopReason = catalog.StopCanceled
			break
		}

		started := time.Now()
		pageCtx, pageSpan := telemetry.Tracer().Start(ctx, "pagination.page",
			trace.WithAttributes(attribute.Int("page", page)))
		pr, err := c.fetcher.Fetch(pageCtx, page)
		if err != nil {
			telemetry.RecordError(pageSpan, err)
			pageSpan.End()
			kind := catalog.FetchErrorKindOf(err)
			metrics.ObserveFetchError(string(kind), time.Since(started))
			res.FetchError = err.Error()
			res.StopReason = catalog.StopFetchError
			if kind == catalog.FetchCanceled || ctx.Err() != nil {
				res.StopReason = catalog.StopCanceled
			}
			c.logger.Warn("page fetch failed, stopping collection",
				zap.Int("page", page),
				zap.String("kind", string(kind)),
				zap.Int("collected", acc.Len()),
				zap.Error(err),
			)
			break
		}

		res.PagesProcessed++
		if page == 1 {
			res.ReportedTotalCount = pr.ReportedTotalCount
			if size := pr.DerivedPageSize(); size > 0 {
				res.PageSize = size
			}
		}

		ids := c.extractor.Extract(pr.Fragment)
		added := acc.AddAll(ids)
		last := lastPage(res.ReportedTotalCount, res.PageSize)

		outcome := "items"
		if len(ids) == 0 {
			outcome = "empty"
		}
		metrics.ObservePage(outcome, time.Since(started))
		pageSpan.SetAttributes(attribute.Int("extracted", len(ids)), attribute.Int("new", added))
		pageSpan.End()
		c.logPage(opts.DetailedLogging, page, len(ids), added, acc.Len(), last)

		if opts.OnPage != nil {
			opts.OnPage(PageProgress{
				Page:               page,
				Extracted:          len(ids),
				New:                added,
				Accumulated:        acc.Len(),
				ReportedTotalCount: res.ReportedTotalCount,
				LastPage:           last,
			})
		}

		if len(ids) == 0 {
			res.StopReason = catalog.StopEmptyPage
			break
		}
		if last > 0 && page >= last {
			res.StopReason = catalog.StopLastPage
			break
		}
		if page >= opts.MaxPages {
			res.StopReason = catalog.StopMaxPages
			break
		}
		if err := Pause(ctx, opts.InterPageDelay); err != nil {
			res.StopReason = catalog.StopCanceled
			break
		}
	}

	res.Identifiers = acc.Slice()
	res.FinishedAt = c.clock.Now()
	metrics.ObserveCollection(string(res.StopReason), len(res.Identifiers))
	span.SetAttributes(
		attribute.Int("identifiers", len(res.Identifiers)),
		attribute.Int("pages_processed", res.PagesProcessed),
		attribute.String("stop_reason", string(res.StopReason)),
	)
	c.logger.Info("collection finished",
		zap.Int("identifiers", len(res.Identifiers)),
		zap.Int("pages_processed", res.PagesProcessed),
		zap.Int("reported_total", res.ReportedTotalCount),
		zap.String("stop_reason", string(res.StopReason)),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (c *Controller) logPage(detailed bool, page, extracted, added, accumulated, last int) {
	fields := []zap.Field{
		zap.Int("page", page),
		zap.Int("extracted", extracted),
		zap.Int("new", added),
		zap.Int("accumulated", accumulated),
		zap.Int("last_page", last),
	}
	if detailed {
		c.logger.Info("page processed", fields...)
		return
	}
	c.logger.Debug("page processed", fields...)
}

// lastPage returns ceil(total/pageSize), or 0 when total is unknown.
func lastPage(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
