package restriction

import (
	"strconv"
	"time"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// CollectionSummary is the part of a collection run carried in a report.
type CollectionSummary struct {
	PagesProcessed     int                `json:"pages_processed"`
	ReportedTotalCount int                `json:"reported_total_count"`
	StopReason         catalog.StopReason `json:"stop_reason"`
	FetchError         string             `json:"fetch_error,omitempty"`
}

// DetectionReport is the advisory outcome of one detection run.
type DetectionReport struct {
	RunID              string               `json:"run_id"`
	SourceURL          string               `json:"source_url"`
	BaselineCount      int                  `json:"baseline_count"`
	CurrentCount       int                  `json:"current_count"`
	CandidateCount     int                  `json:"candidate_count"`
	NewlyDetected      int                  `json:"newly_detected"`
	AlreadyKnown       int                  `json:"already_known"`
	Recorded           int                  `json:"recorded"`
	Failed             int                  `json:"failed"`
	ItemsFlagged       int                  `json:"items_flagged"`
	PlaceholdersMade   int                  `json:"placeholders_created"`
	ItemFailures       int                  `json:"item_failures"`
	CoveragePercentage float64              `json:"coverage_percentage"`
	MissingPercentage  float64              `json:"missing_percentage"`
	Interrupted        bool                 `json:"interrupted"`
	Skipped            bool                 `json:"skipped"`
	SkipReason         string               `json:"skip_reason,omitempty"`
	Collection         CollectionSummary    `json:"collection"`
	Candidates         []catalog.Identifier `json:"candidates"`
	StartedAt          time.Time            `json:"started_at"`
	FinishedAt         time.Time            `json:"finished_at"`
}

// Attributes labels the published message.
func (r DetectionReport) Attributes() map[string]string {
	return map[string]string{
		"run_id":     r.RunID,
		"kind":       "detection_report",
		"candidates": strconv.Itoa(r.CandidateCount),
	}
}
