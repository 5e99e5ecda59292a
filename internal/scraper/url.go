package scraper

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trailingPunctuation covers characters commonly glued to a URL pasted in
// free-form chat text.
const trailingPunctuation = ".,)>]"

var listingURLRe = regexp.MustCompile(`(?i)https?://(?:www\.)?idealista\.[^\s]+`)

// NormalizeURL canonicalizes a listing URL so the same listing is never
// tracked under two keys: surrounding whitespace and trailing punctuation are
// trimmed, and the /ru locale segment is stripped from the path. Idempotent.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, trailingPunctuation)
	if raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch {
	case u.Path == "/ru":
		u.Path = "/"
	case strings.HasPrefix(u.Path, "/ru/"):
		u.Path = strings.TrimPrefix(u.Path, "/ru")
	}
	return u.String()
}

// ExtractListingURLs returns every Idealista URL found in free text,
// normalized, deduplicated, and sorted.
func ExtractListingURLs(text string) []string {
	matches := listingURLRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	unique := make(map[string]struct{}, len(matches))
	var urls []string
	for _, m := range matches {
		u := NormalizeURL(m)
		if u == "" {
			continue
		}
		if _, ok := unique[u]; ok {
			continue
		}
		unique[u] = struct{}{}
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}
