// Package service runs collections and detections on behalf of the CLI,
// the HTTP API and the scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/lock"
	"github.com/JakeFAU/catalog-reconciler/internal/pagination"
	"github.com/JakeFAU/catalog-reconciler/internal/reconcile"
	"github.com/JakeFAU/catalog-reconciler/internal/restriction"
)

// ErrNothingCollected is returned when a collection yields no identifiers.
var ErrNothingCollected = errors.New("no identifiers collected")

// Collector runs one pagination pass.
type Collector interface {
	Collect(ctx context.Context, opts pagination.Options) (catalog.CollectionResult, error)
}

// Detector runs one restriction detection.
type Detector interface {
	DetectAndRecord(ctx context.Context, baseline []catalog.Identifier) (restriction.DetectionReport, error)
}

// SnapshotWriter persists collected identifiers.
type SnapshotWriter interface {
	Write(ctx context.Context, ids []catalog.Identifier) (string, error)
}

// CollectRequest parameterizes an interactive collection.
type CollectRequest struct {
	MaxPages int  `json:"max_pages,omitempty"`
	Snapshot bool `json:"snapshot,omitempty"`
}

// CollectResponse is the outcome of Collect.
type CollectResponse struct {
	Result      catalog.CollectionResult `json:"result"`
	SnapshotURI string                   `json:"snapshot_uri,omitempty"`
}

// Options are the defaults applied to interactive collections. SourceURL
// keys the lease shared with detection runs.
type Options struct {
	SourceURL       string
	MaxPages        int
	InterPageDelay  time.Duration
	DetailedLogging bool
	Tolerance       reconcile.Tolerance
	LockTTL         time.Duration
}

// Deps are the collaborators of a Service. Snapshots and Locker may be nil.
type Deps struct {
	Collector Collector
	Detector  Detector
	Baseline  catalog.BaselineSource
	Snapshots SnapshotWriter
	Locker    lock.Locker
	Logger    *zap.Logger
}

// Service implements the collect and detect operations.
type Service struct {
	deps Deps
	opts Options

	// running admits one collection or detection per process.
	running sync.Mutex
}

// New builds a Service.
func New(deps Deps, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Hour
	}
	return &Service{deps: deps, opts: opts}
}

// Collect runs a collection, validates it against the baseline and
// optionally writes a snapshot. Baseline problems only disable validation.
// It fails with lock.ErrHeld while another run walks the same source.
func (s *Service) Collect(ctx context.Context, req CollectRequest) (CollectResponse, error) {
	if !s.running.TryLock() {
		return CollectResponse{}, fmt.Errorf("collection already running: %w", lock.ErrHeld)
	}
	defer s.running.Unlock()

	lease, err := s.deps.Locker.Acquire(ctx, s.opts.SourceURL, s.opts.LockTTL)
	if err != nil {
		return CollectResponse{}, fmt.Errorf("acquire source lock: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.deps.Logger.Warn("failed to release source lock", zap.Error(err))
		}
	}()

	maxPages := s.opts.MaxPages
	if req.MaxPages > 0 {
		maxPages = req.MaxPages
	}
	result, err := s.deps.Collector.Collect(ctx, pagination.Options{
		MaxPages:        maxPages,
		InterPageDelay:  s.opts.InterPageDelay,
		DetailedLogging: s.opts.DetailedLogging,
	})
	if err != nil {
		return CollectResponse{}, fmt.Errorf("collect: %w", err)
	}
	resp := CollectResponse{Result: result}

	if base, err := s.loadBaseline(ctx); err != nil {
		s.deps.Logger.Warn("baseline unavailable, skipping validation", zap.Error(err))
	} else if len(base) > 0 {
		report := reconcile.Validate(result.Identifiers, base, s.opts.Tolerance)
		resp.Result.Validation = &report
		reconcile.LogReport(s.deps.Logger, report)
	}

	if len(result.Identifiers) == 0 {
		return resp, ErrNothingCollected
	}

	if req.Snapshot {
		if s.deps.Snapshots == nil {
			return resp, fmt.Errorf("snapshot requested but no snapshot store is configured")
		}
		uri, err := s.deps.Snapshots.Write(ctx, result.Identifiers)
		if err != nil {
			return resp, err
		}
		resp.SnapshotURI = uri
		s.deps.Logger.Info("snapshot written", zap.String("uri", uri), zap.Int("identifiers", len(result.Identifiers)))
	}
	return resp, nil
}

// Detect loads the baseline and runs a detection. A call made while a
// collection or detection is running fails with lock.ErrHeld. A run that
// collected nothing against a non-empty baseline returns ErrNothingCollected
// alongside its report. The detector takes the shared source lease itself.
func (s *Service) Detect(ctx context.Context) (restriction.DetectionReport, error) {
	if !s.running.TryLock() {
		return restriction.DetectionReport{}, fmt.Errorf("detection already running: %w", lock.ErrHeld)
	}
	defer s.running.Unlock()

	base, err := s.loadBaseline(ctx)
	if err != nil {
		return restriction.DetectionReport{}, err
	}
	report, err := s.deps.Detector.DetectAndRecord(ctx, base)
	if err != nil {
		return report, fmt.Errorf("detect: %w", err)
	}
	if report.BaselineCount > 0 && report.CurrentCount == 0 {
		return report, ErrNothingCollected
	}
	return report, nil
}

func (s *Service) loadBaseline(ctx context.Context) ([]catalog.Identifier, error) {
	if s.deps.Baseline == nil {
		return []catalog.Identifier{}, nil
	}
	ids, err := s.deps.Baseline.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	return ids, nil
}
