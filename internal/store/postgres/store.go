// Package postgres документное хранилище на PostgreSQL: строка JSONB на
// документ, живые запросы работают от store.ChangeFeed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_chat/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Store struct {
	pool    *pgxpool.Pool
	feed    store.ChangeFeed
	watcher *store.Watcher
	logger  *zap.Logger
}

// New создаёт хранилище поверх пула. feed получает сигнал после каждой
// успешной записи.
func New(pool *pgxpool.Pool, feed store.ChangeFeed, logger *zap.Logger) *Store {
	if feed == nil {
		feed = store.NewLocalFeed()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{pool: pool, feed: feed, logger: logger}
	s.watcher = store.NewWatcher(s.Query, feed, logger)
	return s
}

// Connect открывает пул соединений и проверяет доступность базы
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func validateKey(collection, id string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("collection is required")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("document id is required")
	}
	return nil
}

// Get получает документ по ID
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := validateKey(collection, id); err != nil {
		return store.Document{}, err
	}

	query := `
		SELECT data
		FROM documents
		WHERE collection = $1 AND id = $2
	`

	var data map[string]any
	err := s.pool.QueryRow(ctx, query, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}

	return store.Document{ID: id, Data: data}, nil
}

// Set создаёт или заменяет документ
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.write(ctx, collection, id, func(_ map[string]any, _ bool, now int64) (map[string]any, error) {
		return store.ApplyFields(nil, data, now)
	})
}

// Merge дополняет документ полями, создавая его при отсутствии
func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, collection, id, func(current map[string]any, _ bool, now int64) (map[string]any, error) {
		return store.ApplyFields(current, fields, now)
	})
}

// Update дополняет существующий документ
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, collection, id, func(current map[string]any, exists bool, now int64) (map[string]any, error) {
		if !exists {
			return nil, store.ErrNotFound
		}
		return store.ApplyFields(current, fields, now)
	})
}

// Add создаёт документ со сгенерированным ID
func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Delete удаляет документ
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	query := `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2
	`

	result, err := s.pool.Exec(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if result.RowsAffected() > 0 {
		s.publish(ctx, collection)
	}
	return nil
}

type mutation func(current map[string]any, exists bool, now int64) (map[string]any, error)

// write читает документ под блокировкой строки, применяет изменение и
// сохраняет результат. Время берётся из часов базы.
func (s *Store) write(ctx context.Context, collection, id string, mutate mutation) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var now int64
	if err := tx.QueryRow(ctx, `SELECT (EXTRACT(EPOCH FROM clock_timestamp()) * 1000000)::BIGINT`).Scan(&now); err != nil {
		return fmt.Errorf("read server clock: %w", err)
	}

	var current map[string]any
	exists := true
	err = tx.QueryRow(ctx, `
		SELECT data
		FROM documents
		WHERE collection = $1 AND id = $2
		FOR UPDATE
	`, collection, id).Scan(&current)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock document: %w", err)
		}
		exists = false
	}

	next, err := mutate(current, exists, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = NOW()
	`, collection, id, next)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.publish(ctx, collection)
	return nil
}

// publish сообщает подписчикам об изменении. Ошибка фида не отменяет
// уже зафиксированную запись.
func (s *Store) publish(ctx context.Context, collection string) {
	if err := s.feed.Publish(ctx, collection); err != nil {
		s.logger.Error("Failed to publish change",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

// Query выполняет разовый запрос
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if doc.Data == nil {
			doc.Data = map[string]any{}
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return docs, nil
}

// Subscribe запускает живой запрос
func (s *Store) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotFunc) (store.Subscription, error) {
	return s.watcher.Subscribe(ctx, q, fn)
}

var _ store.Store = (*Store)(nil)
