// Package memory документное хранилище в памяти процесса
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Имена операций, передаваемые в FaultFunc
const (
	OpGet    = "get"
	OpSet    = "set"
	OpMerge  = "merge"
	OpUpdate = "update"
	OpAdd    = "add"
	OpDelete = "delete"
	OpQuery  = "query"
)

// FaultFunc внедряет сбои: ненулевой результат прерывает операцию
type FaultFunc func(op, collection, id string) error

// Store хранит документы в памяти
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any // коллекция -> id -> данные
	lastStamp   int64
	clock       func() time.Time
	fault       FaultFunc

	feed    store.ChangeFeed
	logger  *zap.Logger
	watcher *store.Watcher
}

type Option func(*Store)

// WithFeed задаёт общий фид изменений, например для нескольких хранилищ
func WithFeed(feed store.ChangeFeed) Option {
	return func(s *Store) { s.feed = feed }
}

// WithClock подменяет часы хранилища
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger задаёт логгер живых запросов
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]map[string]any),
		clock:       time.Now,
		feed:        store.NewLocalFeed(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.watcher = store.NewWatcher(s.Query, s.feed, s.logger)
	return s
}

// SetFault устанавливает внедрение сбоев, nil снимает его
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) checkFault(op, collection, id string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, collection, id)
}

// now возвращает строго возрастающее время. Вызывается под mu.
func (s *Store) now() int64 {
	ts := store.TimeValue(s.clock())
	if ts <= s.lastStamp {
		ts = s.lastStamp + 1
	}
	s.lastStamp = ts
	return ts
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

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	if err := validateKey(collection, id); err != nil {
		return store.Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkFault(OpGet, collection, id); err != nil {
		return store.Document{}, err
	}
	data, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: id, Data: store.CopyData(data)}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.write(ctx, OpSet, collection, id, func(_ map[string]any, _ bool, now int64) (map[string]any, error) {
		return store.ApplyFields(nil, data, now)
	})
}

func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, OpMerge, collection, id, func(current map[string]any, _ bool, now int64) (map[string]any, error) {
		return store.ApplyFields(current, fields, now)
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, OpUpdate, collection, id, func(current map[string]any, exists bool, now int64) (map[string]any, error) {
		if !exists {
			return nil, store.ErrNotFound
		}
		return store.ApplyFields(current, fields, now)
	})
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	err := s.write(ctx, OpAdd, collection, id, func(_ map[string]any, _ bool, now int64) (map[string]any, error) {
		return store.ApplyFields(nil, data, now)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(collection, id); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.checkFault(OpDelete, collection, id); err != nil {
		s.mu.Unlock()
		return err
	}
	_, existed := s.collections[collection][id]
	delete(s.collections[collection], id)
	s.mu.Unlock()

	if existed {
		return s.feed.Publish(ctx, collection)
	}
	return nil
}

type mutation func(current map[string]any, exists bool, now int64) (map[string]any, error)

func (s *Store) write(ctx context.Context, op, collection, id string, mutate mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(collection, id); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.checkFault(op, collection, id); err != nil {
		s.mu.Unlock()
		return err
	}
	current, exists := s.collections[collection][id]
	next, err := mutate(current, exists, s.now())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}
	s.collections[collection][id] = next
	s.mu.Unlock()

	return s.feed.Publish(ctx, collection)
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := q.Validate()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkFault(OpQuery, q.Collection, ""); err != nil {
		return nil, err
	}
	docs := make([]store.Document, 0, len(s.collections[q.Collection]))
	for id, data := range s.collections[q.Collection] {
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	result := q.Apply(docs)
	for i := range result {
		result[i].Data = store.CopyData(result[i].Data)
	}
	return result, nil
}

func (s *Store) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotFunc) (store.Subscription, error) {
	return s.watcher.Subscribe(ctx, q, fn)
}

var _ store.Store = (*Store)(nil)
