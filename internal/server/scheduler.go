package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/lock"
	"github.com/JakeFAU/catalog-reconciler/internal/restriction"
)

type detectFunc func(ctx context.Context) (restriction.DetectionReport, error)

// newScheduler registers detect on schedule. An empty schedule returns a nil scheduler.
// Overlapping firings are skipped.
func newScheduler(ctx context.Context, schedule string, detect detectFunc, logger *zap.Logger) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	cl := cronLogger{logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(schedule, func() { runScheduledDetection(ctx, detect, logger) }); err != nil {
		return nil, fmt.Errorf("invalid detection schedule %q: %w", schedule, err)
	}
	return c, nil
}

func runScheduledDetection(ctx context.Context, detect detectFunc, logger *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	report, err := detect(ctx)
	switch {
	case errors.Is(err, lock.ErrHeld):
		logger.Info("scheduled detection skipped, another run holds the lock")
	case err != nil:
		logger.Error("scheduled detection failed", zap.String("run_id", report.RunID), zap.Error(err))
	case report.Skipped:
		logger.Warn("scheduled detection recorded nothing, collection incomplete",
			zap.String("run_id", report.RunID),
			zap.String("stop_reason", report.SkipReason),
			zap.Int("current", report.CurrentCount),
		)
	default:
		logger.Info("scheduled detection finished",
			zap.String("run_id", report.RunID),
			zap.Int("candidates", report.CandidateCount),
			zap.Int("recorded", report.Recorded),
			zap.Int("failed", report.Failed),
		)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
