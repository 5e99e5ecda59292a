package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flatbot/internal/model"
	"flatbot/internal/scraper"
)

// sendPause spaces out notification sends to stay under Telegram rate limits.
const sendPause = time.Second

// FormatListing renders the notification card for a listing.
func FormatListing(l scraper.Listing) string {
	return fmt.Sprintf(
		"🏠 *%s*\n\n💰 *%s*\n🛏 %s\n📐 %s\n🏢 %s\n\n[Ver anuncio](%s)",
		l.Title, l.Price, l.Rooms, l.Size, l.Floor, l.URL,
	)
}

// SendListing delivers one listing notification to chatID, attaching the
// thumbnail photo when one is available and an inline promote button while
// the saved record is still preliminary. A nil saved record means the CRM
// save failed; the notification still goes out without a button.
func (b *Bot) SendListing(l scraper.Listing, saved *model.Listing, chatID int64) {
	text := FormatListing(l)
	markup := promoteMarkup(saved)

	if strings.HasPrefix(l.Thumbnail, "http") {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(l.Thumbnail))
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeMarkdown
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		if _, err := b.api.Send(photo); err == nil {
			time.Sleep(sendPause)
			return
		}
		// dead or oversized thumbnail, fall back to a plain message
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send listing", "chat_id", chatID, "url", l.URL, "error", err)
	}
	time.Sleep(sendPause)
}

// promoteMarkup builds the inline keyboard for a notification. The promote
// action is offered only while the record sits in the preliminary stage.
func promoteMarkup(saved *model.Listing) *tgbotapi.InlineKeyboardMarkup {
	if saved == nil || saved.Stage != model.StagePreliminary {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❤️ Like",
				fmt.Sprintf("%s:%d", callbackPromote, saved.ID)),
		),
	)
	return &markup
}
