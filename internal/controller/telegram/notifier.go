package telegram

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// Notifier доставляет уведомления в Telegram тем, кто привязал аккаунт.
// К новой заявке прикладываются кнопки ответа.
type Notifier struct {
	api      API
	userRepo *repository.UserRepository
	relRepo  *repository.RelationshipRepository
	logger   *zap.Logger
}

func NewNotifier(api API, userRepo *repository.UserRepository, relRepo *repository.RelationshipRepository, logger *zap.Logger) *Notifier {
	return &Notifier{
		api:      api,
		userRepo: userRepo,
		relRepo:  relRepo,
		logger:   logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, notification *model.Notification) error {
	recipient, err := n.userRepo.GetByID(ctx, notification.RecipientID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if recipient == nil || recipient.TelegramID == 0 {
		return nil
	}

	params := &bot.SendMessageParams{
		ChatID: recipient.TelegramID,
		Text:   formatNotification(notification),
	}

	if notification.Type == model.NotificationRequestReceived && notification.RelatedID != "" {
		rel, err := n.relRepo.GetByID(ctx, notification.RelatedID)
		if err != nil {
			return fmt.Errorf("get relationship: %w", err)
		}
		if rel != nil && rel.IsPending() {
			params.ReplyMarkup = requestKeyboard(rel.Pair().Other(recipient.ID))
		}
	}

	if _, err := n.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	n.logger.Info("Telegram notification sent",
		zap.String("recipient_id", recipient.ID),
		zap.Int64("telegram_id", recipient.TelegramID),
		zap.String("type", string(notification.Type)),
	)

	return nil
}

func formatNotification(n *model.Notification) string {
	emoji := "🔔"
	switch n.Type {
	case model.NotificationRequestReceived:
		emoji = "📨"
	case model.NotificationRequestApproved:
		emoji = "✅"
	case model.NotificationRequestDenied:
		emoji = "❌"
	case model.NotificationRemoved:
		emoji = "👋"
	case model.NotificationCompleted:
		emoji = "🎓"
	}

	if n.Message == "" {
		return fmt.Sprintf("%s %s", emoji, n.Title)
	}
	return fmt.Sprintf("%s %s\n\n%s", emoji, n.Title, n.Message)
}
