// Package config handles application configuration from environment
// variables and an optional exclusion-rule file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"flatbot/internal/filter"
)

// defaultSearchURL is the Barcelona long-term rental search, newest first.
const defaultSearchURL = "https://www.idealista.com/alquiler-viviendas/barcelona-barcelona/" +
	"con-precio-hasta_2700,precio-desde_1000,alquiler-de-larga-temporada/" +
	"?ordenado-por=fecha-publicacion-desc"

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	// TelegramChatID is the chat that receives scrape notifications. When
	// zero, the scrape loop is disabled and only inbound messages are served.
	TelegramChatID int64
	// ScrapflyAPIKey enables the anti-bot fetch proxy. When empty, pages are
	// rendered in a local headless browser instead.
	ScrapflyAPIKey string
	SearchURL      string
	DatabasePath   string
	SeenFile       string
	// HTTPAddr is the CRM API listen address. Empty disables the API.
	HTTPAddr string
	LogLevel string

	IntervalMin      time.Duration
	IntervalMax      time.Duration
	MaxPages         int
	MinNewToContinue int

	Exclusions filter.Rules
}

// Load reads configuration from environment variables. FILTERS_FILE, when
// set, points at a YAML file with excluded_areas/excluded_terms/
// excluded_floors lists.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		ScrapflyAPIKey:   os.Getenv("SCRAPFLY_API_KEY"),
		SearchURL:        envOr("IDEALISTA_URL", defaultSearchURL),
		DatabasePath:     envOr("DATABASE_PATH", "./data/bot.db"),
		SeenFile:         envOr("SEEN_FILE", "./data/seen_links.txt"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramChatID = chatID
	}

	var err error
	if cfg.IntervalMin, err = envSeconds("SCRAPE_INTERVAL_MIN", 600); err != nil {
		return nil, err
	}
	if cfg.IntervalMax, err = envSeconds("SCRAPE_INTERVAL_MAX", 780); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = envInt("MAX_PAGES", 3); err != nil {
		return nil, err
	}
	if cfg.MinNewToContinue, err = envInt("MIN_NEW_TO_CONTINUE", 25); err != nil {
		return nil, err
	}

	if path := os.Getenv("FILTERS_FILE"); path != "" {
		rules, err := loadRules(path)
		if err != nil {
			return nil, err
		}
		cfg.Exclusions = rules
	}

	return cfg, nil
}

// loadRules reads exclusion lists from a YAML file.
func loadRules(path string) (filter.Rules, error) {
	var rules filter.Rules
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return rules, fmt.Errorf("read filters file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse filters file %s: %w", path, err)
	}
	return rules, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

func envSeconds(key string, fallback int) (time.Duration, error) {
	v, err := envInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}
