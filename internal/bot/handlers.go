package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flatbot/internal/model"
	"flatbot/internal/scraper"
	"flatbot/internal/storage"
)

// callbackPromote is the inline-button action prefix; callback data has the
// form "promote:<listing-id>".
const callbackPromote = "promote"

var errAlreadyPromoted = errors.New("already in target stage")

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	urls := scraper.ExtractListingURLs(msg.Text)
	if len(urls) == 0 {
		return
	}
	chatID := msg.Chat.ID
	b.log.Info("importing listing urls", "chat_id", chatID, "count", len(urls))

	for _, u := range urls {
		listing, outcome, err := b.importURL(ctx, u)
		switch {
		case err != nil:
			b.log.Error("import listing url", "url", u, "error", err)
			b.reply(chatID, "Failed to import:\n"+u)
		case outcome == storage.UpsertCreated:
			b.reply(chatID, "Added to CRM:\n"+listing.Title)
		case outcome == storage.UpsertPromoted:
			b.reply(chatID, "Moved to To Be Communicated.")
		default:
			b.reply(chatID, "Listing already exists.")
		}
	}
}

// importURL scrapes a single listing page and upserts it into the CRM. It
// holds the shared lock so the import never interleaves with a scrape cycle.
func (b *Bot) importURL(ctx context.Context, url string) (*model.Listing, storage.UpsertOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	scraped, err := b.scraper.ScrapeListing(ctx, url)
	if err != nil {
		return nil, "", fmt.Errorf("scrape listing: %w", err)
	}

	rec := scraped.Record()
	rec.Source = model.SourceTelegram
	return b.store.UpsertByURL(ctx, &rec, model.StageToBeCommunicated)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.SplitN(cb.Data, ":", 2)
	if len(parts) != 2 || parts[0] != callbackPromote {
		return
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		b.answer(cb.ID, "Invalid action.")
		return
	}

	b.log.Info("promote callback", "id", id, "user_id", cb.From.ID, "username", cb.From.UserName)

	b.mu.Lock()
	err = b.promote(ctx, id)
	b.mu.Unlock()

	switch {
	case errors.Is(err, errAlreadyPromoted):
		b.answer(cb.ID, "Already marked.")
	case errors.Is(err, storage.ErrNotFound):
		b.answer(cb.ID, "Listing not found.")
	case err != nil:
		b.log.Error("promote listing", "id", id, "error", err)
		b.answer(cb.ID, "Failed to update listing.")
	default:
		b.answer(cb.ID, "Moved to To Be Communicated.")
		b.clearReplyMarkup(cb)
	}
}

// promote moves a listing to to_be_communicated, appending it to that column.
func (b *Bot) promote(ctx context.Context, id int64) error {
	listing, err := b.store.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if listing.Stage == model.StageToBeCommunicated {
		return errAlreadyPromoted
	}

	max, err := b.store.MaxPosition(ctx, model.StageToBeCommunicated)
	if err != nil {
		return err
	}
	_, err = b.store.UpdateStage(ctx, id, model.StageToBeCommunicated, max+1)
	return err
}

// clearReplyMarkup removes the inline keyboard from the notification message
// once its action has been used.
func (b *Bot) clearReplyMarkup(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(
		cb.Message.Chat.ID,
		cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	if _, err := b.api.Request(edit); err != nil {
		b.log.Error("clear reply markup", "error", err)
	}
}
