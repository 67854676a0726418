package notification

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// TelegramBot is the part of *tgbotapi.BotAPI used to post alerts
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender mirrors alerts to a single operator chat
type TelegramSender struct {
	bot    TelegramBot
	chatID int64
}

// NewTelegramSender creates a sender for chatID
func NewTelegramSender(bot TelegramBot, chatID int64) *TelegramSender {
	return &TelegramSender{bot: bot, chatID: chatID}
}

// NewTelegramBot connects to the Bot API with token
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeConnection, "Failed to create Telegram bot", err)
	}
	return bot, nil
}

// Name implements Sender
func (ts *TelegramSender) Name() string { return "telegram" }

// Send implements Sender. The Bot API client has no context support, so a
// cancelled context only prevents the call from starting.
func (ts *TelegramSender) Send(ctx context.Context, alert *models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(ts.chatID, RenderText(alert))
	msg.DisableWebPagePreview = true
	if _, err := ts.bot.Send(msg); err != nil {
		return utils.WrapAppError(utils.ErrCodeConnection, "Failed to send Telegram message", err)
	}
	return nil
}
