// Package scraper implements the Idealista search scraper: anti-bot page
// fetching, HTML field extraction, URL canonicalization, and pagination with
// diminishing-returns cutoffs.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Default pagination limits.
const (
	DefaultMaxPages         = 3
	DefaultMinNewToContinue = 25
)

// Options control a pagination run.
type Options struct {
	// MaxPages caps how many result pages are fetched per run.
	MaxPages int
	// MinNewToContinue stops pagination once a page yields this many new
	// listings or fewer. Pages with genuinely new results are expected to be
	// full, so a thin page means the crawl has caught up.
	MinNewToContinue int
}

// DedupeFunc filters already-known listings out of a single page before
// accumulation, so the cutoff sees post-filter counts.
type DedupeFunc func([]Listing) ([]Listing, error)

// Scraper drives the page fetcher across result pages.
type Scraper struct {
	fetcher PageFetcher
	opts    Options
	log     *slog.Logger
}

// New creates a Scraper. Zero option fields fall back to the defaults.
func New(fetcher PageFetcher, opts Options, log *slog.Logger) *Scraper {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.MinNewToContinue <= 0 {
		opts.MinNewToContinue = DefaultMinNewToContinue
	}
	return &Scraper{fetcher: fetcher, opts: opts, log: log}
}

// ScrapeListings fetches and extracts a single search results page.
func (s *Scraper) ScrapeListings(ctx context.Context, pageURL string) ([]Listing, error) {
	html, err := s.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	listings, err := ParseSearchPage(html, pageURL)
	if err != nil {
		return nil, err
	}
	s.log.Debug("extracted listings", "url", pageURL, "count", len(listings))
	return listings, nil
}

// ScrapeListing fetches and parses a single listing detail page.
func (s *Scraper) ScrapeListing(ctx context.Context, pageURL string) (*Listing, error) {
	html, err := s.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	return ParseDetailPage(html, pageURL)
}

// ScrapeAllPages walks result pages until a fetch failure, a thin page, or
// the page limit. Listings gathered before a failure are kept; the second
// return reports whether the run stopped on a fetch failure. A listing is
// attributed to the page it was found on, never retroactively merged.
func (s *Scraper) ScrapeAllPages(ctx context.Context, baseURL string, dedupe DedupeFunc) ([]Listing, bool) {
	var all []Listing

	for page := 1; page <= s.opts.MaxPages; page++ {
		pageURL := baseURL
		if page > 1 {
			pageURL = buildPaginationURL(baseURL, page)
		}
		s.log.Info("scraping page", "page", page, "url", pageURL)

		listings, err := s.ScrapeListings(ctx, pageURL)
		if err != nil {
			s.log.Warn("page failed, stopping pagination", "page", page, "error", err)
			return all, true
		}

		if dedupe != nil {
			filtered, err := dedupe(listings)
			if err != nil {
				s.log.Error("dedupe listings", "page", page, "error", err)
			} else {
				listings = filtered
			}
		}

		all = append(all, listings...)

		if len(listings) <= s.opts.MinNewToContinue {
			s.log.Info("thin page, stopping pagination",
				"page", page, "count", len(listings), "threshold", s.opts.MinNewToContinue)
			break
		}
	}
	return all, false
}

// buildPaginationURL places the pagina-N segment at the end of the path,
// replacing any existing one and preserving the query string untouched.
func buildPaginationURL(baseURL string, page int) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	path := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(path, "/pagina-"); i >= 0 {
		path = path[:i]
	}
	u.Path = fmt.Sprintf("%s/pagina-%d.htm", path, page)
	return u.String()
}
