package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidPage signals a page number below 1. It is a caller bug, not a
// network failure.
var ErrInvalidPage = errors.New("page must be >= 1")

// FetchErrorKind classifies why a page fetch failed.
type FetchErrorKind string

// Fetch error kinds.
const (
	FetchHTTPStatus        FetchErrorKind = "http_status"
	FetchMaintenance       FetchErrorKind = "maintenance"
	FetchRateLimited       FetchErrorKind = "rate_limited"
	FetchNotFound          FetchErrorKind = "not_found"
	FetchUnexpectedFormat  FetchErrorKind = "unexpected_format"
	FetchMalformedPayload  FetchErrorKind = "malformed_payload"
	FetchIncompletePayload FetchErrorKind = "incomplete_payload"
	FetchTimeout           FetchErrorKind = "timeout"
	FetchTransport         FetchErrorKind = "transport"
	FetchCanceled          FetchErrorKind = "canceled"
)

// FetchError is the typed failure returned by a PageFetcher.
type FetchError struct {
	Kind       FetchErrorKind
	Page       int
	StatusCode int
	Preview    string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch page %d: %s", e.Page, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchErrorKindOf returns the kind of a FetchError in err's chain, or
// FetchTransport for any other non-nil error.
func FetchErrorKindOf(err error) FetchErrorKind {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FetchTransport
}

// ErrRestrictionNotFound is returned by RestrictionStore.Get for unknown identifiers.
var ErrRestrictionNotFound = errors.New("restriction record not found")
