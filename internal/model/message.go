package model

import "time"

// DeletedMessageText заменяет текст удалённого сообщения
const DeletedMessageText = "This message was deleted"

// Message запись журнала сообщений переписки
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsDeleted bool      `json:"is_deleted"`
	IsEdited  bool      `json:"is_edited"`
}
