package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrFeedClosed доставляется, если фид изменений остановился раньше отмены
// подписки
var ErrFeedClosed = errors.New("change feed closed")

// QueryFunc выполняет разовый запрос к бэкенду
type QueryFunc func(ctx context.Context, q Query) ([]Document, error)

// Watcher превращает запрос к бэкенду и ChangeFeed в живые подписки:
// каждый сигнал по коллекции перезапускает запрос и отдаёт полный результат.
type Watcher struct {
	query  QueryFunc
	feed   ChangeFeed
	logger *zap.Logger
}

func NewWatcher(query QueryFunc, feed ChangeFeed, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{query: query, feed: feed, logger: logger}
}

type watchSubscription struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

func (s *watchSubscription) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

func (s *watchSubscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe запускает живой запрос. Первый снимок отдаётся сразу,
// обработчики одной подписки не выполняются параллельно.
func (w *Watcher) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error) {
	q, err := q.Validate()
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil snapshot callback", ErrInvalidQuery)
	}

	subCtx, cancel := context.WithCancel(ctx)
	// слушаем до первого запроса, чтобы не потерять изменение между ними
	changes, err := w.feed.Listen(subCtx, q.Collection)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen %s: %w", q.Collection, err)
	}

	sub := &watchSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer cancel()

		w.deliver(subCtx, sub, q, fn)
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					if !sub.cancelled.Load() && ctx.Err() == nil {
						w.logger.Warn("Change feed closed", zap.String("collection", q.Collection))
						fn(nil, ErrFeedClosed)
					}
					return
				}
				w.deliver(subCtx, sub, q, fn)
			}
		}
	}()
	return sub, nil
}

func (w *Watcher) deliver(ctx context.Context, sub *watchSubscription, q Query, fn SnapshotFunc) {
	docs, err := w.query(ctx, q)
	if sub.cancelled.Load() || ctx.Err() != nil {
		return
	}
	if err != nil {
		w.logger.Warn("Live query failed",
			zap.String("collection", q.Collection),
			zap.Error(err),
		)
	}
	fn(docs, err)
}
