package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter は管理者チャットへ差異を通知する
type TelegramAlerter struct {
	bot    botAPI
	chatID int64
}

func NewTelegramAlerter(token string, chatID int64) (*TelegramAlerter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramAlerter{bot: api, chatID: chatID}, nil
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
