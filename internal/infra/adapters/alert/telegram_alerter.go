package alert

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"event-billing/internal/config"
	"event-billing/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*TelegramAlerter)(nil)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// TelegramAlerter posts operator alerts to a fixed set of Telegram chats.
type TelegramAlerter struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	log     *zerolog.Logger
}

func NewTelegramAlerter(cfg config.AlertConfig, logger *zerolog.Logger) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramAlerter(bot, cfg.ChatIDs, logger)
}

// NewTelegramAlerterWithEndpoint targets a custom Bot API endpoint of the
// form "https://host/bot%s/%s".
func NewTelegramAlerterWithEndpoint(cfg config.AlertConfig, endpoint string, logger *zerolog.Logger) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramAlerter(bot, cfg.ChatIDs, logger)
}

func newTelegramAlerter(bot *tgbotapi.BotAPI, chatIDs []int64, logger *zerolog.Logger) (*TelegramAlerter, error) {
	if len(chatIDs) == 0 {
		return nil, errors.New("alert.chat_ids is empty")
	}
	l := logger.With().Str("component", "TelegramAlerter").Logger()
	return &TelegramAlerter{bot: bot, chatIDs: chatIDs, log: &l}, nil
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen-3] + "..."
	}
	var errs []error
	for _, id := range a.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := a.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			a.log.Error().Err(err).Int64("chat_id", id).Msg("alert not delivered")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
