package store

import (
	"context"
	"sync"
)

// ChangeFeed доставляет сигналы "коллекция изменилась" от писателей к
// живым запросам, в том числе между процессами.
type ChangeFeed interface {
	Publish(ctx context.Context, collection string) error
	// Listen возвращает канал, в который приходит сигнал после изменений
	// collection. Сигналы схлопываются. Канал закрывается по завершении ctx.
	Listen(ctx context.Context, collection string) (<-chan struct{}, error)
}

// LocalFeed ChangeFeed внутри процесса
type LocalFeed struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{listeners: make(map[string]map[chan struct{}]struct{})}
}

func (f *LocalFeed) Publish(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.listeners[collection] {
		Signal(ch)
	}
	return nil
}

func (f *LocalFeed) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	if f.listeners[collection] == nil {
		f.listeners[collection] = make(map[chan struct{}]struct{})
	}
	f.listeners[collection][ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.listeners[collection], ch)
		if len(f.listeners[collection]) == 0 {
			delete(f.listeners, collection)
		}
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

// Signal неблокирующая отправка в буферизованный канал размера один
func Signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var _ ChangeFeed = (*LocalFeed)(nil)
