package model

import "time"

// Conversation постоянное хранилище истории сообщений пары
type Conversation struct {
	ID                   string            `json:"id"`
	ParticipantIDs       []string          `json:"participant_ids"` // всегда двое
	ParticipantNames     map[string]string `json:"participant_names"`
	ParticipantPhotoURLs map[string]string `json:"participant_photo_urls"`
	LastMessage          string            `json:"last_message"`
	LastMessageTimestamp time.Time         `json:"last_message_timestamp"`
	CreatedAt            time.Time         `json:"created_at"`
}

// HasParticipant проверяет, участвует ли id в переписке
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}

// Counterpart возвращает второго участника для id
func (c *Conversation) Counterpart(id string) string {
	for _, p := range c.ParticipantIDs {
		if p != id {
			return p
		}
	}
	return ""
}
