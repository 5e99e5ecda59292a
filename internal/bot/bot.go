// Package bot implements the Telegram side of the dispatcher: inbound
// listing-URL imports, promote callbacks, and notification fan-out.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flatbot/internal/config"
	"flatbot/internal/scraper"
	"flatbot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that imports listing URLs from chat messages,
// handles promote callbacks, and delivers new-listing notifications.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	scraper *scraper.Scraper
	cfg     *config.Config
	// mu serializes against the scrape loop so a chat-triggered import and
	// a scrape cycle never write concurrently.
	mu  *sync.Mutex
	log *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, store storage.Storage, sc *scraper.Scraper, cfg *config.Config, mu *sync.Mutex, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		scraper: sc,
		cfg:     cfg,
		mu:      mu,
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Per-update failures are logged and never terminate the loop.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			msg := update.Message
			if msg == nil {
				msg = update.EditedMessage
			}
			if msg == nil || msg.Text == "" {
				continue
			}
			b.handleMessage(ctx, msg)
		}
	}
}

// SendMessage sends a plain text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("answer callback", "error", err)
	}
}
