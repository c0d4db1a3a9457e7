// Package reconcile compares a collected identifier set with a baseline.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/metrics"
)

// Region warning thresholds. They are deliberately looser than Tolerance.
const (
	RegionWarningMissing  = 10
	RegionWarningExtra    = 10
	RegionWarningCoverage = 90.0
)

// Tolerance sets the pass thresholds, in percent.
type Tolerance struct {
	MinCoveragePct float64 `mapstructure:"min_coverage_pct"`
	MaxExtraPct    float64 `mapstructure:"max_extra_pct"`
}

// DefaultTolerance returns the default thresholds.
func DefaultTolerance() Tolerance {
	return Tolerance{MinCoveragePct: 80, MaxExtraPct: 20}
}

// Validate compares found against baseline. Both inputs are treated as sets;
// duplicates are ignored. An empty baseline always validates.
func Validate(found, baseline []catalog.Identifier, tol Tolerance) catalog.ValidationReport {
	foundSet := catalog.NewIdentifierSet(found...)
	baseSet := catalog.NewIdentifierSet(baseline...)

	if baseSet.Len() == 0 {
		return catalog.ValidationReport{
			IsValid:            true,
			TotalFound:         foundSet.Len(),
			CoveragePercentage: 100,
			MissingIdentifiers: []catalog.Identifier{},
			ExtraIdentifiers:   []catalog.Identifier{},
		}
	}

	missing := catalog.Difference(baseSet.Slice(), found)
	extra := catalog.Difference(foundSet.Slice(), baseline)

	coverage := float64((foundSet.Len()-len(extra))*100) / float64(baseSet.Len())
	coverage = clamp(coverage, 0, 100)

	extraPct := 0.0
	if foundSet.Len() > 0 {
		extraPct = float64(len(extra)*100) / float64(foundSet.Len())
	}

	return catalog.ValidationReport{
		IsValid:            coverage >= tol.MinCoveragePct && extraPct <= tol.MaxExtraPct,
		TotalExpected:      baseSet.Len(),
		TotalFound:         foundSet.Len(),
		CoveragePercentage: coverage,
		ExtraPercentage:    extraPct,
		MissingCount:       len(missing),
		ExtraCount:         len(extra),
		RegionWarning: len(missing) > RegionWarningMissing ||
			len(extra) > RegionWarningExtra ||
			coverage < RegionWarningCoverage,
		MissingIdentifiers: missing,
		ExtraIdentifiers:   extra,
	}
}

// LogReport logs the report and records it in metrics. Reports that fail or
// carry a region warning are logged at warn level.
func LogReport(logger *zap.Logger, report catalog.ValidationReport) {
	metrics.ObserveValidation(report.CoveragePercentage, report.RegionWarning)

	fields := []zap.Field{
		zap.Bool("valid", report.IsValid),
		zap.Int("expected", report.TotalExpected),
		zap.Int("found", report.TotalFound),
		zap.Float64("coverage_pct", report.CoveragePercentage),
		zap.Float64("extra_pct", report.ExtraPercentage),
		zap.Int("missing", report.MissingCount),
		zap.Int("extra", report.ExtraCount),
		zap.Bool("region_warning", report.RegionWarning),
	}
	if len(report.MissingIdentifiers) > 0 {
		fields = append(fields, zap.Strings("missing_sample", sample(report.MissingIdentifiers, 20)))
	}

	switch {
	case report.RegionWarning:
		logger.Warn("collection differs from baseline, possible region restriction", fields...)
	case !report.IsValid:
		logger.Warn("collection failed validation", fields...)
	default:
		logger.Info("collection validated", fields...)
	}
}

func sample(ids []catalog.Identifier, n int) []string {
	if len(ids) < n {
		n = len(ids)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ids[i].String()
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
