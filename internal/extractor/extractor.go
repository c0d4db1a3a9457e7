// Package extractor pulls catalog identifiers out of search-result markup.
//
// Extraction is two-tier. The primary pass isolates item containers with a
// CSS selector and runs the matcher chain inside each one. When that yields
// nothing, the fallback pass runs the same chain over the whole fragment.
// Every candidate goes through catalog.ParseIdentifier, so loose patterns
// cannot leak malformed identifiers.
package extractor

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// DefaultContainerSelector matches the repeated result containers of the
// search listing.
const DefaultContainerSelector = `li.search_result_img_box_inner, ` +
	`li[class*="search_result"], li[class*="work_list"], ` +
	`div[class*="n_worklist_item"], tr[class*="search_result"]`

// Tier names the extraction pass that produced a result.
type Tier string

// Extraction tiers.
const (
	TierNone     Tier = "none"
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

// Config controls the extractor.
type Config struct {
	ContainerSelector string
	Matchers          []Matcher
}

// Extractor implements catalog.Extractor.
type Extractor struct {
	selector string
	matchers []Matcher
}

// New builds an Extractor, filling unset fields with defaults.
func New(cfg Config) *Extractor {
	if strings.TrimSpace(cfg.ContainerSelector) == "" {
		cfg.ContainerSelector = DefaultContainerSelector
	}
	if len(cfg.Matchers) == 0 {
		cfg.Matchers = DefaultMatchers()
	}
	return &Extractor{
		selector: cfg.ContainerSelector,
		matchers: cfg.Matchers,
	}
}

// Extract returns the distinct valid identifiers in fragment, first-seen order.
func (e *Extractor) Extract(fragment string) []catalog.Identifier {
	ids, _ := e.ExtractWithTier(fragment)
	return ids
}

// ExtractWithTier is Extract plus the tier that produced the result.
func (e *Extractor) ExtractWithTier(fragment string) ([]catalog.Identifier, Tier) {
	if strings.TrimSpace(fragment) == "" {
		return []catalog.Identifier{}, TierNone
	}
	if ids := e.primary(fragment); len(ids) > 0 {
		return ids, TierPrimary
	}
	if ids := e.match(fragment); len(ids) > 0 {
		return ids, TierFallback
	}
	return []catalog.Identifier{}, TierNone
}

func (e *Extractor) primary(fragment string) []catalog.Identifier {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	set := catalog.NewIdentifierSet()
	doc.Find(e.selector).Each(func(_ int, sel *goquery.Selection) {
		outer, err := goquery.OuterHtml(sel)
		if err != nil {
			return
		}
		set.AddAll(e.match(outer))
	})
	return set.Slice()
}

// match runs every matcher over fragment. Rendered markup escapes quotes in
// attribute values, so the unescaped form is scanned as well.
func (e *Extractor) match(fragment string) []catalog.Identifier {
	set := catalog.NewIdentifierSet()
	inputs := []string{fragment}
	if unescaped := html.UnescapeString(fragment); unescaped != fragment {
		inputs = append(inputs, unescaped)
	}
	for _, input := range inputs {
		for _, m := range e.matchers {
			for _, raw := range m.Find(input) {
				id, err := catalog.ParseIdentifier(raw)
				if err != nil {
					continue
				}
				set.Add(id)
			}
		}
	}
	return set.Slice()
}
