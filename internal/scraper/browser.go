package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in a local headless Chrome. It is the fallback
// when no Scrapfly key is configured: it still satisfies the rendered-JS
// requirement, though it cannot bypass anti-bot challenges the way the proxy
// does.
type BrowserFetcher struct {
	opts       []chromedp.ExecAllocatorOption
	settleTime time.Duration
}

// NewBrowserFetcher creates a headless-browser fetcher.
func NewBrowserFetcher() *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	return &BrowserFetcher{opts: opts, settleTime: 2 * time.Second}
}

// FetchPage navigates to pageURL and returns the rendered document.
func (f *BrowserFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, f.opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(f.settleTime),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}
	return html, nil
}
