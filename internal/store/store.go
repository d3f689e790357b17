// Package store описывает контракт документного хранилища для сервисов
// отношений, переписок и сообщений.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound документ не найден
	ErrNotFound = errors.New("document not found")
	// ErrInvalidQuery некорректный запрос или значение фильтра
	ErrInvalidQuery = errors.New("invalid query")
)

// Document один сохранённый документ. Data содержит только JSON-совместимые значения.
type Document struct {
	ID   string
	Data map[string]any
}

// SnapshotFunc получает полный результат запроса после каждого изменения
// либо ошибку, из-за которой его не удалось вычислить.
type SnapshotFunc func(docs []Document, err error)

// Subscription отменяемый живой запрос
type Subscription interface {
	// Cancel останавливает доставку. Уже запущенный обработчик дорабатывает.
	Cancel()
	// Done закрывается после выхода горутины доставки
	Done() <-chan struct{}
}

// Store документное хранилище коллекций с живыми запросами.
// Подколлекции адресуются путём, например "conversations/<id>/messages".
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set создаёт или заменяет документ
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Merge дополняет документ, создавая его при отсутствии
	Merge(ctx context.Context, collection, id string, fields map[string]any) error
	// Update дополняет существующий документ, иначе ErrNotFound
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Add создаёт документ со сгенерированным id
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// Delete удаляет документ. Удаление отсутствующего документа не ошибка.
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error)
}
