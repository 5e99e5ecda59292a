// Package filter implements the listing exclusion engine.
package filter

import (
	"strings"

	"flatbot/internal/scraper"
)

// Rules holds the configured exclusion term lists. Terms are unordered;
// matching is a case-insensitive substring check.
type Rules struct {
	// Areas and Terms match against the combined title and description text.
	Areas []string `yaml:"excluded_areas"`
	Terms []string `yaml:"excluded_terms"`
	// Floors match against the floor text only.
	Floors []string `yaml:"excluded_floors"`
}

// Engine filters scraped listings against exclusion rules.
type Engine struct {
	rules Rules
}

// New creates an Engine for the given rules.
func New(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Excluded reports whether a listing matches any exclusion rule.
func (e *Engine) Excluded(l scraper.Listing) bool {
	text := strings.ToLower(l.Title + " " + l.Description)
	if containsAny(text, e.rules.Areas) || containsAny(text, e.rules.Terms) {
		return true
	}
	return containsAny(strings.ToLower(l.Floor), e.rules.Floors)
}

// Apply drops excluded listings, preserving order.
func (e *Engine) Apply(listings []scraper.Listing) []scraper.Listing {
	kept := listings[:0:0]
	for _, l := range listings {
		if !e.Excluded(l) {
			kept = append(kept, l)
		}
	}
	return kept
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
