package catalog

import "time"

// DefaultItemsPerPage is the remote search page size used when page_info
// does not allow deriving it.
const DefaultItemsPerPage = 30

// PageResult is one decoded search page.
type PageResult struct {
	Page               int
	Fragment           string
	ReportedTotalCount int
	FirstIndex         int
	LastIndex          int
}

// DerivedPageSize returns the page size implied by the page's index range,
// or zero when the range is not usable.
func (p PageResult) DerivedPageSize() int {
	if p.FirstIndex <= 0 || p.LastIndex < p.FirstIndex {
		return 0
	}
	return p.LastIndex - p.FirstIndex + 1
}

// StopReason records why a collection run ended.
type StopReason string

// Collection stop reasons.
const (
	StopLastPage   StopReason = "last_page"
	StopEmptyPage  StopReason = "empty_page"
	StopMaxPages   StopReason = "max_pages"
	StopFetchError StopReason = "fetch_error"
	StopCanceled   StopReason = "canceled"
)

// CollectionResult is the output of one pagination run.
type CollectionResult struct {
	Identifiers        []Identifier      `json:"identifiers"`
	PagesProcessed     int               `json:"pages_processed"`
	ReportedTotalCount int               `json:"reported_total_count"`
	PageSize           int               `json:"page_size"`
	StopReason         StopReason        `json:"stop_reason"`
	FetchError         string            `json:"fetch_error,omitempty"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
	Validation         *ValidationReport `json:"validation,omitempty"`
}

// ValidationReport compares a collected set against a baseline.
// It is derived data and is never persisted as-is.
type ValidationReport struct {
	IsValid            bool         `json:"is_valid"`
	TotalExpected      int          `json:"total_expected"`
	TotalFound         int          `json:"total_found"`
	CoveragePercentage float64      `json:"coverage_percentage"`
	ExtraPercentage    float64      `json:"extra_percentage"`
	MissingCount       int          `json:"missing_count"`
	ExtraCount         int          `json:"extra_count"`
	RegionWarning      bool         `json:"region_warning"`
	MissingIdentifiers []Identifier `json:"missing_identifiers"`
	ExtraIdentifiers   []Identifier `json:"extra_identifiers"`
}

// DetectionMethod records how a restriction was observed.
type DetectionMethod string

// Detection methods persisted with restriction records.
const (
	DetectionBaselineDiff DetectionMethod = "baseline_diff"
	DetectionManual       DetectionMethod = "manual"
)

// ErrorDetails is the provenance payload stored with a restriction record.
type ErrorDetails struct {
	Reason        string `json:"reason"`
	RunID         string `json:"run_id,omitempty"`
	BaselineCount int    `json:"baseline_count"`
	CurrentCount  int    `json:"current_count"`
	SourceURL     string `json:"source_url,omitempty"`
}

// RestrictionRecord notes that an identifier was expected but not observed
// from the current vantage point.
type RestrictionRecord struct {
	Identifier      Identifier      `json:"identifier"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	FirstDetectedAt time.Time       `json:"first_detected_at"`
	LastAttemptAt   time.Time       `json:"last_attempt_at"`
	AttemptCount    int             `json:"attempt_count"`
	ErrorDetails    ErrorDetails    `json:"error_details"`
}

// RestrictionUpsert is the write model for one detection of an identifier.
type RestrictionUpsert struct {
	Identifier      Identifier
	DetectionMethod DetectionMethod
	DetectedAt      time.Time
	ErrorDetails    ErrorDetails
}

// ItemRestriction is merged into a catalog item document.
type ItemRestriction struct {
	Identifier      Identifier
	DetectionMethod DetectionMethod
	DetectedAt      time.Time
	RunID           string
}

// Item is the catalog item document as far as restriction flagging is concerned.
type Item struct {
	Identifier       Identifier      `json:"identifier"`
	Placeholder      bool            `json:"placeholder"`
	RegionRestricted bool            `json:"region_restricted"`
	RestrictionBy    DetectionMethod `json:"restriction_method,omitempty"`
	RestrictedAt     time.Time       `json:"restricted_at"`
	RestrictionRunID string          `json:"restriction_run_id,omitempty"`
}
