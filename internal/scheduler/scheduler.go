// Package scheduler runs the timer branch of the dispatcher: the periodic
// scrape-dedupe-notify-persist cycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"flatbot/internal/config"
	"flatbot/internal/filter"
	"flatbot/internal/model"
	"flatbot/internal/scraper"
	"flatbot/internal/seen"
	"flatbot/internal/storage"
)

// Notifier delivers new-listing notifications to the chat.
type Notifier interface {
	SendListing(l scraper.Listing, saved *model.Listing, chatID int64)
}

// Scheduler periodically scrapes the search URL and fans new listings out to
// the chat and the CRM.
type Scheduler struct {
	store    storage.Storage
	seen     *seen.Store
	engine   *filter.Engine
	scraper  *scraper.Scraper
	notifier Notifier
	cfg      *config.Config
	// mu serializes scrape cycles against chat-triggered imports.
	mu  *sync.Mutex
	log *slog.Logger
}

// New creates a Scheduler.
func New(store storage.Storage, seenStore *seen.Store, engine *filter.Engine,
	sc *scraper.Scraper, notifier Notifier, cfg *config.Config, mu *sync.Mutex, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		seen:     seenStore,
		engine:   engine,
		scraper:  sc,
		notifier: notifier,
		cfg:      cfg,
		mu:       mu,
		log:      log,
	}
}

// Run starts the scrape loop, blocking until ctx is cancelled. The wait
// between cycles is interruptible; a cycle already in progress always runs
// to completion.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.nextDelay()):
		}
	}
}

// runCycle executes one cycle under the shared lock. Failures are logged and
// never terminate the loop; the next scheduled cycle is the retry mechanism.
func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scrape cycle panic", "panic", r)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAndNotify(ctx); err != nil {
		s.log.Error("scrape cycle", "error", err)
	}
}

// nextDelay picks a uniform random wait within the configured interval
// range, fixed to the minimum when the range is empty.
func (s *Scheduler) nextDelay() time.Duration {
	min, max := s.cfg.IntervalMin, s.cfg.IntervalMax
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// checkAndNotify runs one scrape-dedupe-persist-notify pass.
func (s *Scheduler) checkAndNotify(ctx context.Context) error {
	s.log.Info("checking for new listings", "url", s.cfg.SearchURL)

	listings, errored := s.scraper.ScrapeAllPages(ctx, s.cfg.SearchURL, func(page []scraper.Listing) ([]scraper.Listing, error) {
		return s.dedupe(ctx, page)
	})
	if errored {
		return errors.New("scraping failed")
	}
	if len(listings) == 0 {
		s.log.Info("no new listings")
		return nil
	}

	s.log.Info("found new listings", "count", len(listings))
	for _, l := range listings {
		saved := s.save(ctx, l)
		s.seen.Add(l.URL)
		s.notifier.SendListing(l, saved, s.cfg.TelegramChatID)
	}
	return nil
}

// dedupe is the per-page filter: exclusion rules first, then the durable
// seen-set, then URLs already present in the CRM.
func (s *Scheduler) dedupe(ctx context.Context, listings []scraper.Listing) ([]scraper.Listing, error) {
	listings = s.engine.Apply(listings)

	fresh := listings[:0:0]
	var urls []string
	for _, l := range listings {
		if s.seen.Contains(l.URL) {
			continue
		}
		fresh = append(fresh, l)
		urls = append(urls, l.URL)
	}
	if len(fresh) == 0 {
		return fresh, nil
	}

	unknown, err := s.store.FilterUnknownURLs(ctx, urls)
	if err != nil {
		return fresh, fmt.Errorf("filter known urls: %w", err)
	}
	unknownSet := make(map[string]struct{}, len(unknown))
	for _, u := range unknown {
		unknownSet[u] = struct{}{}
	}

	kept := fresh[:0:0]
	for _, l := range fresh {
		if _, ok := unknownSet[l.URL]; ok {
			kept = append(kept, l)
		}
	}
	return kept, nil
}

// save records a scraped listing in the CRM as a preliminary card. A nil
// return means the save failed; the notification still goes out, just
// without a promote button.
func (s *Scheduler) save(ctx context.Context, l scraper.Listing) *model.Listing {
	existing, err := s.store.GetListingByURL(ctx, l.URL)
	if err == nil {
		return existing
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("look up listing", "url", l.URL, "error", err)
		return nil
	}

	rec := l.Record()
	rec.Stage = model.StagePreliminary
	rec.Source = model.SourceScraper
	if err := s.store.CreateListing(ctx, &rec); err != nil {
		s.log.Error("save listing", "url", l.URL, "error", err)
		return nil
	}
	s.log.Info("saved listing", "id", rec.ID, "title", rec.Title)
	return &rec
}
