package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"flatbot/internal/config"
	"flatbot/internal/filter"
	"flatbot/internal/model"
	"flatbot/internal/scraper"
	"flatbot/internal/seen"
	"flatbot/internal/storage"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetches int
}

func (f *fakeFetcher) FetchPage(_ context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	html, ok := f.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("no page for %s", pageURL)
	}
	return html, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []scraper.Listing
}

func (n *fakeNotifier) SendListing(l scraper.Listing, _ *model.Listing, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, l)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func searchPage(cards ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cards {
		b.WriteString(c)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func card(id int, title string) string {
	return fmt.Sprintf(
		`<article class="item"><a href="/inmueble/%d/" class="item-link">%s</a><span class="item-price">900 &euro;/mes</span></article>`,
		id, title)
}

const searchURL = "https://www.idealista.com/alquiler-viviendas/barcelona/"

func newTestScheduler(t *testing.T, fetcher scraper.PageFetcher, rules filter.Rules) (*Scheduler, storage.Storage, *fakeNotifier) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	seenStore := seen.NewStore(filepath.Join(dir, "seen_links.txt"), log)
	sc := scraper.New(fetcher, scraper.Options{MaxPages: 1}, log)
	notifier := &fakeNotifier{}
	cfg := &config.Config{
		SearchURL:      searchURL,
		TelegramChatID: 42,
		IntervalMin:    time.Hour,
		IntervalMax:    time.Hour,
	}

	var mu sync.Mutex
	s := New(store, seenStore, filter.New(rules), sc, notifier, cfg, &mu, log)
	return s, store, notifier
}

func TestCycleNotifiesAndPersists(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		searchURL: searchPage(card(1, "Piso uno"), card(2, "Piso dos")),
	}}
	s, store, notifier := newTestScheduler(t, fetcher, filter.Rules{})
	ctx := context.Background()

	if err := s.checkAndNotify(ctx); err != nil {
		t.Fatalf("checkAndNotify: %v", err)
	}

	if notifier.count() != 2 {
		t.Errorf("sent %d notifications, want 2", notifier.count())
	}

	got, err := store.GetListingByURL(ctx, "https://www.idealista.com/inmueble/1/")
	if err != nil {
		t.Fatalf("listing not saved: %v", err)
	}
	if got.Stage != model.StagePreliminary {
		t.Errorf("stage = %q, want preliminary", got.Stage)
	}
	if got.Source != model.SourceScraper {
		t.Errorf("source = %q, want scraper", got.Source)
	}

	if !s.seen.Contains("https://www.idealista.com/inmueble/1/") {
		t.Error("notified url not marked seen")
	}
}

func TestSecondCycleSendsNothing(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		searchURL: searchPage(card(1, "Piso uno")),
	}}
	s, _, notifier := newTestScheduler(t, fetcher, filter.Rules{})
	ctx := context.Background()

	if err := s.checkAndNotify(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := s.checkAndNotify(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if notifier.count() != 1 {
		t.Errorf("sent %d notifications across two cycles, want 1", notifier.count())
	}
}

func TestCycleAppliesExclusionRules(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		searchURL: searchPage(card(1, "Piso en Eixample"), card(2, "Piso en Badalona")),
	}}
	s, _, notifier := newTestScheduler(t, fetcher, filter.Rules{Areas: []string{"badalona"}})

	if err := s.checkAndNotify(context.Background()); err != nil {
		t.Fatalf("checkAndNotify: %v", err)
	}

	if notifier.count() != 1 {
		t.Fatalf("sent %d notifications, want 1", notifier.count())
	}
	if notifier.sent[0].Title != "Piso en Eixample" {
		t.Errorf("notified %q", notifier.sent[0].Title)
	}
	// the excluded listing must not be marked seen; rules can change
	if s.seen.Contains("https://www.idealista.com/inmueble/2/") {
		t.Error("excluded url marked seen")
	}
}

func TestCycleSkipsListingsAlreadyInCRM(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		searchURL: searchPage(card(1, "Piso uno")),
	}}
	s, store, notifier := newTestScheduler(t, fetcher, filter.Rules{})
	ctx := context.Background()

	imported := model.Listing{
		Title:        "Piso uno",
		IdealistaURL: "https://www.idealista.com/inmueble/1/",
		Stage:        model.StageInProgress,
	}
	if err := store.CreateListing(ctx, &imported); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	if err := s.checkAndNotify(ctx); err != nil {
		t.Fatalf("checkAndNotify: %v", err)
	}

	if notifier.count() != 0 {
		t.Errorf("sent %d notifications for a known listing, want 0", notifier.count())
	}
}

func TestCycleReportsScrapeFailure(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}
	s, _, notifier := newTestScheduler(t, fetcher, filter.Rules{})

	if err := s.checkAndNotify(context.Background()); err == nil {
		t.Fatal("expected error for failed scrape")
	}
	if notifier.count() != 0 {
		t.Errorf("sent %d notifications, want 0", notifier.count())
	}
}

func TestRunCycleSerializesAgainstSharedLock(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		searchURL: searchPage(card(1, "Piso uno")),
	}}
	s, _, _ := newTestScheduler(t, fetcher, filter.Rules{})

	// holding the shared lock must delay the cycle
	s.mu.Lock()
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		s.runCycle(context.Background())
		close(done)
	}()

	<-started
	select {
	case <-done:
		t.Fatal("cycle ran while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	s.mu.Unlock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never ran after the lock was released")
	}
}

func TestNextDelay(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	fixed := &Scheduler{cfg: &config.Config{IntervalMin: time.Minute, IntervalMax: time.Minute}, log: log}
	if d := fixed.nextDelay(); d != time.Minute {
		t.Errorf("empty range delay = %v, want 1m", d)
	}

	ranged := &Scheduler{cfg: &config.Config{IntervalMin: 10 * time.Minute, IntervalMax: 13 * time.Minute}, log: log}
	for i := 0; i < 100; i++ {
		d := ranged.nextDelay()
		if d < 10*time.Minute || d > 13*time.Minute {
			t.Fatalf("delay %v outside [10m, 13m]", d)
		}
	}
}
