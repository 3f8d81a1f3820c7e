package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Bot wraps the telegram bot with subscription handlers and alert delivery
type Bot struct {
	bot     *bot.Bot
	storage *storage.Storage
	log     *slog.Logger
}

// New creates a new telegram bot
func New(token string, store *storage.Storage, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		storage: store,
		log:     log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(func(context.Context, *bot.Bot, *models.Update) {}),
		bot.WithCallbackQueryDataHandler(zoneCallbackPrefix, bot.MatchTypePrefix, b.zoneCallbackHandler),
	}

	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start ", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/zones", bot.MatchTypeExact, b.zonesHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/stop", bot.MatchTypeExact, b.stopHandler)

	return b, nil
}

// Start starts the bot polling. It blocks until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// Send delivers an HTML message and returns its message id. Failures are
// returned as *SendError.
func (b *Bot) Send(ctx context.Context, chatID int64, text string, buttons []Button) (int, error) {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}
	if kb := LinksKeyboard(buttons); kb != nil {
		params.ReplyMarkup = kb
	}

	msg, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, newSendError(err)
	}
	return msg.ID, nil
}

// ReplyTo sends an HTML message threaded under messageID. The message is
// still sent when the original was deleted.
func (b *Bot) ReplyTo(ctx context.Context, chatID int64, messageID int, text string) (int, error) {
	disablePreview := true
	msg, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
		ReplyParameters: &models.ReplyParameters{
			MessageID:                messageID,
			AllowSendingWithoutReply: true,
		},
	})
	if err != nil {
		return 0, newSendError(err)
	}
	return msg.ID, nil
}

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	username := ""
	if update.Message.From != nil {
		username = update.Message.From.Username
	}

	enabled, err := b.subscribe(ctx, chatID, username)
	if err != nil {
		b.log.Error("subscribe chat", "chat_id", chatID, "error", err)
		b.sendMessage(ctx, chatID, "❌ Something went wrong, try again later.", nil)
		return
	}

	b.log.Info("chat subscribed", "chat_id", chatID, "username", username)

	text := "👋 Welcome to the <b>Attention Tracker</b>!\n\n" +
		"You will get an alert every time a token enters one of the attention zones, " +
		"and follow-ups when it reaches a multiple of its entry market cap.\n\n" +
		"Tap a zone to turn its alerts on or off 👇"

	b.sendMessage(ctx, chatID, text, ZonesKeyboard(enabled))
}

func (b *Bot) zonesHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	sub, err := b.storage.GetSubscription(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMessage(ctx, chatID, "Send /start to subscribe first.", nil)
		return
	}
	if err != nil {
		b.log.Error("get subscription", "chat_id", chatID, "error", err)
		return
	}

	b.sendMessage(ctx, chatID, zonesText(sub.Zones), ZonesKeyboard(sub.Zones))
}

func (b *Bot) stopHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	if err := b.storage.DisableAllZones(ctx, chatID); err != nil {
		b.log.Error("disable zones", "chat_id", chatID, "error", err)
		return
	}

	b.log.Info("chat unsubscribed", "chat_id", chatID)
	b.sendMessage(ctx, chatID, "🔕 All zone alerts are off. Use /zones to turn them back on.", nil)
}

func (b *Bot) zoneCallbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}

	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	if cb.Message.Message == nil {
		return
	}
	chatID := cb.Message.Message.Chat.ID

	z, err := zone.Parse(strings.TrimPrefix(cb.Data, zoneCallbackPrefix))
	if err != nil {
		b.log.Warn("unknown zone callback", "data", cb.Data)
		return
	}

	enabled, err := b.toggleZone(ctx, chatID, cb.From.Username, z)
	if err != nil {
		b.log.Error("toggle zone", "chat_id", chatID, "zone", z, "error", err)
		return
	}

	b.editMessage(ctx, cb.Message, zonesText(enabled), ZonesKeyboard(enabled))
}

// subscribe registers the chat and enables every zone
func (b *Bot) subscribe(ctx context.Context, chatID int64, username string) (zone.Set, error) {
	if err := b.storage.UpsertSubscription(ctx, chatID, username); err != nil {
		return 0, err
	}
	for _, z := range zone.All {
		if err := b.storage.SetZone(ctx, chatID, z, true); err != nil {
			return 0, err
		}
	}
	return zone.NewSet(zone.All...), nil
}

// toggleZone flips one zone for the chat, registering it when needed, and
// returns the resulting opt-ins
func (b *Bot) toggleZone(ctx context.Context, chatID int64, username string, z zone.Zone) (zone.Set, error) {
	sub, err := b.storage.GetSubscription(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := b.storage.UpsertSubscription(ctx, chatID, username); err != nil {
			return 0, err
		}
		sub = &storage.Subscription{ChatID: chatID}
	} else if err != nil {
		return 0, err
	}

	enable := !sub.Zones.Has(z)
	if err := b.storage.SetZone(ctx, chatID, z, enable); err != nil {
		return 0, err
	}

	if enable {
		return sub.Zones.Add(z), nil
	}
	return sub.Zones.Remove(z), nil
}

func zonesText(enabled zone.Set) string {
	if enabled.Empty() {
		return "🔕 No zone alerts enabled. Tap a zone to turn it on."
	}

	var sb strings.Builder
	sb.WriteString("🔔 <b>Alerts enabled for:</b>\n")
	for _, z := range enabled.Zones() {
		sb.WriteString("• " + z.Title() + "\n")
	}
	return sb.String()
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}
