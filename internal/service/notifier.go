package service

import (
	"context"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"go.uber.org/zap"
)

// Notifier доставляет уведомления о переходах отношений
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// NopNotifier ничего не доставляет
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *model.Notification) error { return nil }

// emit отправляет уведомление в фоне; ошибка доставки только логируется
func emit(ctx context.Context, notifier Notifier, logger *zap.Logger, n *model.Notification) {
	if notifier == nil || n.RecipientID == "" {
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := notifier.Notify(ctx, n); err != nil {
			logger.Warn("Failed to deliver notification",
				zap.String("recipient_id", n.RecipientID),
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
		}
	}()
}
