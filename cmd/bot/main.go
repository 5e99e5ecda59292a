package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flatbot/internal/bot"
	"flatbot/internal/config"
	"flatbot/internal/filter"
	"flatbot/internal/scheduler"
	"flatbot/internal/scraper"
	"flatbot/internal/seen"
	"flatbot/internal/storage"
	"flatbot/internal/webapp"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	seenStore := seen.NewStore(cfg.SeenFile, log)
	engine := filter.New(cfg.Exclusions)

	var fetcher scraper.PageFetcher
	if cfg.ScrapflyAPIKey != "" {
		fetcher = scraper.NewScrapflyFetcher(&http.Client{Timeout: 90 * time.Second}, cfg.ScrapflyAPIKey)
	} else {
		log.Warn("no SCRAPFLY_API_KEY set, falling back to local headless browser")
		fetcher = scraper.NewBrowserFetcher()
	}
	sc := scraper.New(fetcher, scraper.Options{
		MaxPages:         cfg.MaxPages,
		MinNewToContinue: cfg.MinNewToContinue,
	}, log)

	// One lock serializes every scraping or CRM-writing trigger: the timer
	// loop, inbound chat imports, and HTTP URL imports.
	var scrapeMu sync.Mutex

	b, err := bot.New(cfg.TelegramBotToken, store, sc, cfg, &scrapeMu, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot",
		"search_url", cfg.SearchURL,
		"interval_min", cfg.IntervalMin,
		"interval_max", cfg.IntervalMax,
	)

	if cfg.TelegramChatID != 0 {
		sched := scheduler.New(store, seenStore, engine, sc, b, cfg, &scrapeMu, log)
		go sched.Run(ctx)
	} else {
		log.Warn("TELEGRAM_CHAT_ID not set, scrape loop disabled")
	}

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           webapp.New(store, sc, &scrapeMu, log).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("starting http api", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	b.Run(ctx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
