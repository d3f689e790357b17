package base

import (
	"errors"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/store"
)

// Repository базовый репозиторий с общими методами
type Repository struct {
	store store.Store
}

// NewRepository создаёт новый базовый репозиторий
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// Store возвращает хранилище документов
func (r *Repository) Store() store.Store {
	return r.store
}

// IsNotFound проверяет является ли ошибка "документ не найден"
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// String читает строковое поле документа
func String(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// Bool читает логическое поле документа
func Bool(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}

// Int64 читает числовое поле документа
func Int64(data map[string]any, key string) int64 {
	n, _ := data[key].(float64)
	return int64(n)
}

// Time читает поле с временем, записанное хранилищем
func Time(data map[string]any, key string) time.Time {
	return store.ToTime(data[key])
}

// Strings читает массив строк
func Strings(data map[string]any, key string) []string {
	raw, _ := data[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// StringMap читает объект со строковыми значениями
func StringMap(data map[string]any, key string) map[string]string {
	raw, _ := data[key].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
