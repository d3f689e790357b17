package telegram

import "github.com/go-telegram/bot/models"

// Callback data: префикс плюс ID второй стороны пары
const (
	ApproveRequest = "ra:" // ra:<counterpart_id>
	DenyRequest    = "rd:" // rd:<counterpart_id>
)

// keyboardBuilder упрощает создание inline клавиатур
type keyboardBuilder struct {
	rows [][]models.InlineKeyboardButton
}

func newKeyboard() *keyboardBuilder {
	return &keyboardBuilder{rows: make([][]models.InlineKeyboardButton, 0)}
}

// Row добавляет новый ряд кнопок
func (b *keyboardBuilder) Row(buttons ...models.InlineKeyboardButton) *keyboardBuilder {
	if len(buttons) > 0 {
		b.rows = append(b.rows, buttons)
	}
	return b
}

func (b *keyboardBuilder) Build() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: b.rows}
}

func button(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: callbackData}
}

// requestKeyboard кнопки ответа на заявку от counterpartID
func requestKeyboard(counterpartID string) *models.InlineKeyboardMarkup {
	return newKeyboard().
		Row(
			button("✅ Принять", ApproveRequest+counterpartID),
			button("❌ Отклонить", DenyRequest+counterpartID),
		).
		Build()
}
