// Package restriction finds baseline identifiers that the catalog no longer
// lists from this vantage point and records them as region restricted.
package restriction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/lock"
	"github.com/JakeFAU/catalog-reconciler/internal/metrics"
	"github.com/JakeFAU/catalog-reconciler/internal/pagination"
	"github.com/JakeFAU/catalog-reconciler/internal/reconcile"
	"github.com/JakeFAU/catalog-reconciler/internal/telemetry"
)

const missingReason = "absent from search results"

// Collector runs one pagination pass.
type Collector interface {
	Collect(ctx context.Context, opts pagination.Options) (catalog.CollectionResult, error)
}

// Config tunes a Detector.
type Config struct {
	SourceURL      string
	MaxPages       int
	InterPageDelay time.Duration
	BatchSize      int
	BatchPause     time.Duration
	AllowPartial   bool
	ReportTopic    string
	LockTTL        time.Duration
}

// Deps are the collaborators of a Detector. Publisher and Locker are optional.
type Deps struct {
	Collector    Collector
	Restrictions catalog.RestrictionStore
	Items        catalog.ItemStore
	Publisher    catalog.Publisher
	Locker       lock.Locker
	Clock        catalog.Clock
	IDs          catalog.IDGenerator
	Logger       *zap.Logger
}

// Detector implements the detection run.
type Detector struct {
	deps Deps
	cfg  Config
}

// New validates deps and cfg.
func New(deps Deps, cfg Config) (*Detector, error) {
	switch {
	case deps.Collector == nil:
		return nil, fmt.Errorf("collector is required")
	case deps.Restrictions == nil:
		return nil, fmt.Errorf("restriction store is required")
	case deps.Items == nil:
		return nil, fmt.Errorf("item store is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.MaxPages < 1 {
		return nil, fmt.Errorf("max pages must be >= 1, got %d", cfg.MaxPages)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Hour
	}
	return &Detector{deps: deps, cfg: cfg}, nil
}

// DetectAndRecord collects the current identifier set, diffs it against
// baseline and upserts a restriction record plus an item flag for every
// missing identifier. Per-item failures are counted, not returned.
func (d *Detector) DetectAndRecord(ctx context.Context, baseline []catalog.Identifier) (DetectionReport, error) {
	runID, err := d.deps.IDs.NewID()
	if err != nil {
		return DetectionReport{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := telemetry.Tracer().Start(ctx, "restriction.DetectAndRecord",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	report, err := d.detect(ctx, runID, baseline)
	span.SetAttributes(
		attribute.Int("baseline", report.BaselineCount),
		attribute.Int("candidates", report.CandidateCount),
		attribute.Int("recorded", report.Recorded),
		attribute.Int("failed", report.Failed),
	)
	telemetry.RecordError(span, err)
	return report, err
}

func (d *Detector) detect(ctx context.Context, runID string, baseline []catalog.Identifier) (DetectionReport, error) {
	logger := d.deps.Logger.With(zap.String("run_id", runID))
	base := catalog.NewIdentifierSet(baseline...).Slice()
	report := DetectionReport{
		RunID:         runID,
		SourceURL:     d.cfg.SourceURL,
		BaselineCount: len(base),
		Candidates:    []catalog.Identifier{},
		StartedAt:     d.deps.Clock.Now(),
	}

	if len(base) == 0 {
		logger.Info("baseline is empty, nothing to detect")
		report.CoveragePercentage = 100
		report.FinishedAt = d.deps.Clock.Now()
		return report, nil
	}

	lease, err := d.deps.Locker.Acquire(ctx, d.cfg.SourceURL, d.cfg.LockTTL)
	if err != nil {
		return report, fmt.Errorf("acquire source lock: %w", err)
	}
	defer func() {
		// The run context may already be canceled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warn("failed to release source lock", zap.Error(err))
		}
	}()

	result, err := d.deps.Collector.Collect(ctx, pagination.Options{
		MaxPages:       d.cfg.MaxPages,
		InterPageDelay: d.cfg.InterPageDelay,
	})
	if err != nil {
		return report, fmt.Errorf("collect current identifiers: %w", err)
	}
	report.CurrentCount = len(result.Identifiers)
	report.Collection = CollectionSummary{
		PagesProcessed:     result.PagesProcessed,
		ReportedTotalCount: result.ReportedTotalCount,
		StopReason:         result.StopReason,
		FetchError:         result.FetchError,
	}

	validation := reconcile.Validate(result.Identifiers, base, reconcile.DefaultTolerance())
	candidates := validation.MissingIdentifiers
	report.Candidates = candidates
	report.CandidateCount = len(candidates)
	report.CoveragePercentage = validation.CoveragePercentage
	report.MissingPercentage = float64(len(candidates)*100) / float64(len(base))
	metrics.SetRestrictionCandidates(len(candidates))

	// Candidates from a partial walk include unvisited pages; report them
	// without recording anything.
	if !d.complete(result) {
		report.Skipped = true
		report.SkipReason = string(result.StopReason)
		logger.Warn("collection incomplete, not recording restrictions",
			zap.String("stop_reason", report.SkipReason),
			zap.Int("current", report.CurrentCount),
			zap.Int("candidates", report.CandidateCount),
		)
		report.FinishedAt = d.deps.Clock.Now()
		d.publish(ctx, logger, report)
		return report, nil
	}

	known, err := d.deps.Restrictions.Known(ctx, candidates)
	if err != nil {
		return report, fmt.Errorf("load known restrictions: %w", err)
	}
	for _, id := range candidates {
		if known[id] {
			report.AlreadyKnown++
		} else {
			report.NewlyDetected++
		}
	}
	logger.Info("restriction candidates computed",
		zap.Int("baseline", report.BaselineCount),
		zap.Int("current", report.CurrentCount),
		zap.Int("candidates", report.CandidateCount),
		zap.Int("newly_detected", report.NewlyDetected),
		zap.Int("already_known", report.AlreadyKnown),
	)

	details := catalog.ErrorDetails{
		Reason:        missingReason,
		RunID:         runID,
		BaselineCount: report.BaselineCount,
		CurrentCount:  report.CurrentCount,
		SourceURL:     d.cfg.SourceURL,
	}
	var runErr error
	for start := 0; start < len(candidates); start += d.cfg.BatchSize {
		if start > 0 {
			if err := pagination.Pause(ctx, d.cfg.BatchPause); err != nil {
				runErr = err
				break
			}
		} else if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		end := min(start+d.cfg.BatchSize, len(candidates))
		d.recordBatch(ctx, logger, candidates[start:end], details, &report)
	}
	if runErr != nil {
		report.Interrupted = true
		logger.Warn("detection interrupted", zap.Int("recorded", report.Recorded), zap.Error(runErr))
	}

	report.FinishedAt = d.deps.Clock.Now()
	logger.Info("detection finished",
		zap.Int("recorded", report.Recorded),
		zap.Int("failed", report.Failed),
		zap.Int("items_flagged", report.ItemsFlagged),
		zap.Int("placeholders", report.PlaceholdersMade),
		zap.Float64("coverage_pct", report.CoveragePercentage),
		zap.Float64("missing_pct", report.MissingPercentage),
	)
	d.publish(ctx, logger, report)
	if runErr != nil {
		return report, fmt.Errorf("detection interrupted: %w", runErr)
	}
	return report, nil
}

func (d *Detector) complete(res catalog.CollectionResult) bool {
	if d.cfg.AllowPartial {
		return len(res.Identifiers) > 0
	}
	return res.StopReason == catalog.StopLastPage || res.StopReason == catalog.StopEmptyPage
}

// recordBatch writes one batch concurrently and waits for all of it.
func (d *Detector) recordBatch(
	ctx context.Context,
	logger *zap.Logger,
	batch []catalog.Identifier,
	details catalog.ErrorDetails,
	report *DetectionReport,
) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, id := range batch {
		g.Go(func() error {
			now := d.deps.Clock.Now()
			_, upsertErr := d.deps.Restrictions.Upsert(ctx, catalog.RestrictionUpsert{
				Identifier:      id,
				DetectionMethod: catalog.DetectionBaselineDiff,
				DetectedAt:      now,
				ErrorDetails:    details,
			})
			created, itemErr := d.deps.Items.MarkRestricted(ctx, catalog.ItemRestriction{
				Identifier:      id,
				DetectionMethod: catalog.DetectionBaselineDiff,
				DetectedAt:      now,
				RunID:           details.RunID,
			})
			metrics.ObserveRestrictionWrite(upsertErr == nil)

			mu.Lock()
			defer mu.Unlock()
			if upsertErr != nil {
				report.Failed++
				logger.Warn("failed to record restriction", zap.String("identifier", id.String()), zap.Error(upsertErr))
			} else {
				report.Recorded++
			}
			if itemErr != nil {
				report.ItemFailures++
				logger.Warn("failed to flag catalog item", zap.String("identifier", id.String()), zap.Error(itemErr))
			} else {
				report.ItemsFlagged++
				if created {
					report.PlaceholdersMade++
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Detector) publish(ctx context.Context, logger *zap.Logger, report DetectionReport) {
	if d.deps.Publisher == nil || d.cfg.ReportTopic == "" {
		return
	}
	id, err := d.deps.Publisher.Publish(ctx, d.cfg.ReportTopic, report)
	if err != nil {
		logger.Warn("failed to publish detection report", zap.String("topic", d.cfg.ReportTopic), zap.Error(err))
		return
	}
	logger.Debug("detection report published", zap.String("message_id", id))
}
