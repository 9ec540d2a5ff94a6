package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/store"
)

// digestMaxItems bounds the message body; the rest is summarised.
const digestMaxItems = 10

// TelegramTransport delivers digests to a Telegram chat.
type TelegramTransport struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramTransport connects the bot. chatID is the destination chat
// for digests.
func NewTelegramTransport(token string, chatID int64) (*TelegramTransport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramTransport{bot: bot, chatID: chatID}, nil
}

// SendDigest implements Transport.
func (t *TelegramTransport) SendDigest(_ context.Context, user model.User, items []store.DigestItem) error {
	msg := tgbotapi.NewMessage(t.chatID, formatDigest(user, items))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func formatDigest(user model.User, items []store.DigestItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 <b>%d new job(s) for %s</b>\n", len(items), user.Name)

	shown := items
	if len(shown) > digestMaxItems {
		shown = shown[:digestMaxItems]
	}
	for _, it := range shown {
		fmt.Fprintf(&sb, "\n<b>%s</b>\n🏢 %s\n📍 %s\n⭐ %d/100\n🔗 %s\n",
			it.Posting.Title, it.Posting.Company, it.Posting.Location,
			it.MatchScore, it.Posting.SourceURL)
	}
	if len(items) > digestMaxItems {
		fmt.Fprintf(&sb, "\n…and %d more.", len(items)-digestMaxItems)
	}
	return sb.String()
}

var _ Transport = (*TelegramTransport)(nil)
