package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository/base"
	"github.com/Freeeeeet/tutor_chat/internal/store"
)

const NotificationsCollection = "notifications"

type NotificationRepository struct {
	*base.Repository
}

func NewNotificationRepository(s store.Store) *NotificationRepository {
	return &NotificationRepository{Repository: base.NewRepository(s)}
}

// Create сохраняет уведомление
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	id, err := r.Store().Add(ctx, NotificationsCollection, map[string]any{
		"recipient_id": n.RecipientID,
		"title":        n.Title,
		"message":      n.Message,
		"type":         string(n.Type),
		"related_id":   n.RelatedID,
		"created_at":   store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	n.ID = id
	return nil
}

// ListByRecipient получает уведомления получателя, новые первыми
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*model.Notification, error) {
	q := store.Collection(NotificationsCollection).
		Where("recipient_id", store.OpEqual, recipientID).
		OrderBy("created_at", store.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	docs, err := r.Store().Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications := make([]*model.Notification, 0, len(docs))
	for _, doc := range docs {
		notifications = append(notifications, &model.Notification{
			ID:          doc.ID,
			RecipientID: base.String(doc.Data, "recipient_id"),
			Title:       base.String(doc.Data, "title"),
			Message:     base.String(doc.Data, "message"),
			Type:        model.NotificationType(base.String(doc.Data, "type")),
			RelatedID:   base.String(doc.Data, "related_id"),
			CreatedAt:   base.Time(doc.Data, "created_at"),
		})
	}

	return notifications, nil
}
