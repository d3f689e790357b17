// Package notify доставляет уведомления об изменениях отношений
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/service"
	"go.uber.org/zap"
)

// StoreNotifier сохраняет уведомления в коллекцию notifications
type StoreNotifier struct {
	repo   *repository.NotificationRepository
	logger *zap.Logger
}

func NewStoreNotifier(repo *repository.NotificationRepository, logger *zap.Logger) *StoreNotifier {
	return &StoreNotifier{repo: repo, logger: logger}
}

func (n *StoreNotifier) Notify(ctx context.Context, notification *model.Notification) error {
	if err := n.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	n.logger.Debug("Notification stored",
		zap.String("notification_id", notification.ID),
		zap.String("recipient_id", notification.RecipientID),
		zap.String("type", string(notification.Type)),
	)

	return nil
}

// Multi рассылает уведомление всем получателям по очереди.
// Ошибка одного канала не останавливает остальные.
type Multi []service.Notifier

func (m Multi) Notify(ctx context.Context, notification *model.Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ service.Notifier = (*StoreNotifier)(nil)
	_ service.Notifier = Multi(nil)
)
