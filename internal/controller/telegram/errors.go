package telegram

import (
	"errors"

	"github.com/Freeeeeet/tutor_chat/internal/service"
)

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return "❌ Пользователь не найден. Привяжите Telegram в профиле"
	case errors.Is(err, service.ErrRequestNotFound):
		return "❌ Заявка не найдена"
	case errors.Is(err, service.ErrRequestNotPending):
		return "❌ Заявка уже обработана"
	case errors.Is(err, service.ErrNotRecipient), errors.Is(err, service.ErrNotParticipant):
		return "❌ У вас нет доступа к этой заявке"
	case errors.Is(err, service.ErrInvalidParticipants):
		return "❌ Неверные участники"
	case errors.Is(err, service.ErrLinkCodeInvalid):
		return "❌ Код привязки недействителен или устарел. Получите новый в профиле"
	case errors.Is(err, service.ErrBlocked):
		return "❌ Пользователь заблокирован"
	default:
		return "❌ Произошла ошибка"
	}
}
