package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	scrapflyEndpoint = "https://api.scrapfly.io/scrape"
	maxResponseSize  = 10 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PageFetcher retrieves the rendered HTML of a single page. Implementations
// never retry; retry policy belongs to the caller's next scheduled cycle.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// ScrapflyFetcher fetches pages through the Scrapfly anti-bot proxy with
// JavaScript rendering enabled. The target site serves its listings only to
// rendered sessions.
type ScrapflyFetcher struct {
	client HTTPClient
	key    string
}

// NewScrapflyFetcher creates a fetcher using the given HTTP client and API key.
func NewScrapflyFetcher(client HTTPClient, key string) *ScrapflyFetcher {
	return &ScrapflyFetcher{client: client, key: key}
}

type scrapflyEnvelope struct {
	Result struct {
		Content    string `json:"content"`
		Success    bool   `json:"success"`
		StatusCode int    `json:"status_code"`
	} `json:"result"`
}

// FetchPage performs a single anti-bot-protected fetch of pageURL. Transport
// errors and non-success upstream statuses are reported as errors; the
// content is only meaningful on a nil error.
func (f *ScrapflyFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	q := url.Values{}
	q.Set("key", f.key)
	q.Set("url", pageURL)
	q.Set("asp", "true")
	q.Set("render_js", "true")
	q.Set("country", countryHint(pageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scrapflyEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrapfly request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrapfly status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var envelope scrapflyEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode scrapfly response: %w", err)
	}
	if !envelope.Result.Success || envelope.Result.StatusCode >= 400 {
		return "", fmt.Errorf("upstream status %d", envelope.Result.StatusCode)
	}
	return envelope.Result.Content, nil
}

// countryHint picks the proxy country for a listing URL. Idealista and its
// locale mirrors are all served from Spain.
func countryHint(string) string {
	return "ES"
}
