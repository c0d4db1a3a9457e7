package extractor

import "regexp"

// Matcher is one independent candidate pattern. Capture group 1 holds the
// candidate identifier. Patterns are intentionally loose; every candidate is
// checked against the identifier format afterwards.
type Matcher struct {
	Name    string
	Pattern *regexp.Regexp
}

// Find returns every raw candidate captured in fragment.
func (m Matcher) Find(fragment string) []string {
	matches := m.Pattern.FindAllStringSubmatch(fragment, -1)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) > 1 && match[1] != "" {
			out = append(out, match[1])
		}
	}
	return out
}

// DefaultMatchers returns the fallback chain in evaluation order.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{
			Name:    "product_url",
			Pattern: regexp.MustCompile(`/product_id/([A-Za-z]{2}[0-9]+)`),
		},
		{
			Name:    "json_field",
			Pattern: regexp.MustCompile(`"(?:product_id|workno|work_no|work_id)"\s*:\s*"([A-Za-z]{2}[0-9]+)"`),
		},
		{
			Name:    "data_attribute",
			Pattern: regexp.MustCompile(`data-(?:product[_-]id|workno|work[_-]id)\s*=\s*["']([A-Za-z]{2}[0-9]+)["']`),
		},
		{
			Name:    "query_param",
			Pattern: regexp.MustCompile(`[?&;](?:product_id|workno|work_id)=([A-Za-z]{2}[0-9]+)`),
		},
		{
			Name:    "alternate_path",
			Pattern: regexp.MustCompile(`/(?:works?|announce|items?)/([A-Za-z]{2}[0-9]+)\b`),
		},
	}
}
