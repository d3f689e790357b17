package model

import "time"

type NotificationType string

const (
	NotificationRequestReceived NotificationType = "request_received"
	NotificationRequestApproved NotificationType = "request_approved"
	NotificationRequestDenied   NotificationType = "request_denied"
	NotificationRemoved         NotificationType = "removed"
	NotificationCompleted       NotificationType = "completed"
)

// Notification событие о переходе отношения
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type"`
	RelatedID   string           `json:"related_id,omitempty"` // id отношения
	CreatedAt   time.Time        `json:"created_at"`
}
