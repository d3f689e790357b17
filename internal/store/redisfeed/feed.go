// Package redisfeed передаёт сигналы об изменениях хранилища через Redis
// pub/sub, чтобы живые запросы одного процесса видели записи другого.
package redisfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "docchanges:"

// Feed реализует store.ChangeFeed на каналах Redis, по каналу на коллекцию
type Feed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// New подключается к redisURL и проверяет соединение
func New(redisURL string, logger *zap.Logger) (*Feed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, logger), nil
}

// NewWithClient создаёт фид поверх готового клиента Redis
func NewWithClient(client *redis.Client, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{client: client, prefix: defaultPrefix, logger: logger}
}

func (f *Feed) channel(collection string) string {
	return f.prefix + collection
}

func (f *Feed) Publish(ctx context.Context, collection string) error {
	if err := f.client.Publish(ctx, f.channel(collection), collection).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Listen подписывается на канал коллекции. Подписка подтверждена до
// возврата из Listen.
func (f *Feed) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	pubsub := f.client.Subscribe(ctx, f.channel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					f.logger.Warn("Redis change channel closed", zap.String("collection", collection))
					return
				}
				store.Signal(out)
			}
		}
	}()
	return out, nil
}

// Close закрывает соединение с Redis
func (f *Feed) Close() error {
	return f.client.Close()
}

// Ping проверяет доступность Redis
func (f *Feed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

var _ store.ChangeFeed = (*Feed)(nil)
