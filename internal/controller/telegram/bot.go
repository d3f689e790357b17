package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// NewBot создаёт клиента Bot API. Обработчики регистрируются позже через
// Controller.RegisterHandlers.
func NewBot(token string, logger *zap.Logger) (*bot.Bot, error) {
	b, err := bot.New(token,
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *models.Update) {
			if update.Message != nil {
				logger.Debug("Unhandled message", zap.Int64("chat_id", update.Message.Chat.ID))
			}
		}),
		bot.WithErrorsHandler(func(err error) {
			logger.Warn("Telegram API error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return b, nil
}

// Run регистрирует обработчики и получает обновления до отмены ctx
func Run(ctx context.Context, b *bot.Bot, c *Controller, logger *zap.Logger) error {
	if err := c.RegisterHandlers(ctx, b); err != nil {
		// меню команд не критично для работы
		logger.Warn("Bot started without commands menu", zap.Error(err))
	}

	logger.Info("Starting bot...")
	b.Start(ctx)
	logger.Info("Bot stopped")
	return nil
}
