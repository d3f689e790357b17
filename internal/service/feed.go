package service

import (
	"sync"

	"github.com/Freeeeeet/tutor_chat/internal/store"
	"go.uber.org/zap"
)

// ListFeed живой упорядоченный список с одной подпиской на потребителя.
// При ошибке подписки список становится пустым, а не устаревшим.
type ListFeed[T any] struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	sub     store.Subscription
	gen     uint64
	items   []T
	updates chan []T
}

func newListFeed[T any](name string, logger *zap.Logger) *ListFeed[T] {
	return &ListFeed[T]{
		name:    name,
		logger:  logger,
		items:   []T{},
		updates: make(chan []T, 1),
	}
}

// restart отменяет прежнюю подписку и запускает новую через subscribe
func (f *ListFeed[T]) restart(subscribe func(fn func([]T, error)) (store.Subscription, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetLocked()
	gen := f.gen

	sub, err := subscribe(func(items []T, err error) {
		f.apply(gen, items, err)
	})
	if err != nil {
		return err
	}
	f.sub = sub

	return nil
}

func (f *ListFeed[T]) apply(gen uint64, items []T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.gen {
		return
	}

	if err != nil {
		f.logger.Warn("List subscription failed, clearing",
			zap.String("feed", f.name),
			zap.Error(err),
		)
		items = nil
	}
	if items == nil {
		items = []T{}
	}
	f.setLocked(items)
}

// Items возвращает последний снимок
func (f *ListFeed[T]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.items
}

// Updates отдаёт каждый новый снимок; непрочитанный снимок заменяется свежим
func (f *ListFeed[T]) Updates() <-chan []T {
	return f.updates
}

// Stop отменяет подписку и очищает список
func (f *ListFeed[T]) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetLocked()
}

func (f *ListFeed[T]) resetLocked() {
	if f.sub != nil {
		f.sub.Cancel()
		f.sub = nil
	}
	f.gen++
	f.items = []T{}
}

func (f *ListFeed[T]) setLocked(items []T) {
	f.items = items
	select {
	case <-f.updates:
	default:
	}
	f.updates <- items
}
