package model

import "time"

// TelegramLinkCode одноразовый код привязки Telegram-аккаунта к профилю.
// Код передаётся боту через /start <код>, так что привязывается тот
// аккаунт, который реально написал боту.
type TelegramLinkCode struct {
	Code      string    `json:"code"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid проверяет, не истёк ли код
func (c *TelegramLinkCode) IsValid(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
