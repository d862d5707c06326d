package alert

import (
	"context"

	"github.com/rs/zerolog"

	"event-billing/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*LogAlerter)(nil)

// LogAlerter writes alerts to the log when no Telegram bot is configured.
type LogAlerter struct {
	log *zerolog.Logger
}

func NewLogAlerter(logger *zerolog.Logger) *LogAlerter {
	l := logger.With().Str("component", "LogAlerter").Logger()
	return &LogAlerter{log: &l}
}

func (a *LogAlerter) Alert(ctx context.Context, text string) error {
	a.log.Warn().Str("alert", text).Msg("operator alert")
	return nil
}
