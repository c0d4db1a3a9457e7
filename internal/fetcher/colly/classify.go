package collyfetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// DefaultPreviewBytes bounds how much of an unexpected body is inspected.
const DefaultPreviewBytes = 2048

type signature struct {
	kind    catalog.FetchErrorKind
	phrases []string
}

// Checked in order; the first hit wins.
var failureSignatures = []signature{
	{kind: catalog.FetchMaintenance, phrases: []string{"maintenance", "メンテナンス"}},
	{kind: catalog.FetchRateLimited, phrases: []string{"too many requests", "rate limit", "アクセスが集中"}},
	{kind: catalog.FetchNotFound, phrases: []string{"not found", "見つかりません"}},
}

type searchPayload struct {
	SearchResult *string   `json:"search_result"`
	PageInfo     *pageInfo `json:"page_info"`
}

type pageInfo struct {
	Count       flexInt `json:"count"`
	FirstIndice flexInt `json:"first_indice"`
	LastIndice  flexInt `json:"last_indice"`
}

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode numeric string: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("parse numeric string %q: %w", s, err)
		}
		*n = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode number: %w", err)
	}
	*n = flexInt(v)
	return nil
}

// classifyResponse turns a completed HTTP exchange into a PageResult or a
// typed fetch error.
func classifyResponse(
	page int,
	statusCode int,
	contentType string,
	body []byte,
	previewBytes int,
) (catalog.PageResult, error) {
	if previewBytes <= 0 {
		previewBytes = DefaultPreviewBytes
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return catalog.PageResult{}, &catalog.FetchError{
			Kind:       catalog.FetchHTTPStatus,
			Page:       page,
			StatusCode: statusCode,
			Preview:    preview(body, previewBytes),
		}
	}
	if !isJSONContentType(contentType) {
		prefix := preview(body, previewBytes)
		return catalog.PageResult{}, &catalog.FetchError{
			Kind:       matchSignature(prefix),
			Page:       page,
			StatusCode: statusCode,
			Preview:    prefix,
			Err:        fmt.Errorf("content type %q", contentType),
		}
	}
	var payload searchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return catalog.PageResult{}, &catalog.FetchError{
			Kind:       catalog.FetchMalformedPayload,
			Page:       page,
			StatusCode: statusCode,
			Preview:    preview(body, previewBytes),
			Err:        err,
		}
	}
	if payload.SearchResult == nil || payload.PageInfo == nil {
		return catalog.PageResult{}, &catalog.FetchError{
			Kind:       catalog.FetchIncompletePayload,
			Page:       page,
			StatusCode: statusCode,
			Preview:    preview(body, previewBytes),
			Err:        missingFieldsError(payload),
		}
	}
	return catalog.PageResult{
		Page:               page,
		Fragment:           *payload.SearchResult,
		ReportedTotalCount: int(payload.PageInfo.Count),
		FirstIndex:         int(payload.PageInfo.FirstIndice),
		LastIndex:          int(payload.PageInfo.LastIndice),
	}, nil
}

// classifyTransportError maps an error raised before a response was read.
func classifyTransportError(page int, err error) error {
	kind := catalog.FetchTransport
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = catalog.FetchCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = catalog.FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = catalog.FetchTimeout
	}
	return &catalog.FetchError{Kind: kind, Page: page, Err: err}
}

func missingFieldsError(p searchPayload) error {
	var missing []string
	if p.SearchResult == nil {
		missing = append(missing, "search_result")
	}
	if p.PageInfo == nil {
		missing = append(missing, "page_info")
	}
	return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func matchSignature(prefix string) catalog.FetchErrorKind {
	lower := strings.ToLower(prefix)
	for _, sig := range failureSignatures {
		for _, phrase := range sig.phrases {
			if strings.Contains(lower, phrase) {
				return sig.kind
			}
		}
	}
	return catalog.FetchUnexpectedFormat
}

func preview(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.ToValidUTF8(string(body), "")
}
