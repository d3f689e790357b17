package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/store"
	"github.com/Freeeeeet/tutor_chat/internal/store/postgres/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Интеграционные тесты запускаются только при заданном TEST_DB_DSN.
func setupTestStore(t *testing.T) *Store {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, goose.SetDialect("postgres"))
	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.UpContext(ctx, db, "."))

	collection := "it_" + t.Name()
	t.Cleanup(func() { cleanup(pool, collection) })
	return New(pool, nil, nil)
}

func cleanup(pool *pgxpool.Pool, prefix string) {
	_, _ = pool.Exec(context.Background(), `DELETE FROM documents WHERE collection LIKE $1 || '%'`, prefix)
}

func TestMigrationsCreateDocumentIndexes(t *testing.T) {
	s := setupTestStore(t)

	rows, err := s.pool.Query(context.Background(),
		`SELECT indexname FROM pg_indexes WHERE tablename = 'documents'`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())

	assert.Contains(t, names, "idx_documents_pair")
	assert.Contains(t, names, "idx_documents_participants")
}

func TestStoreRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	coll := "it_" + t.Name()

	require.NoError(t, s.Set(ctx, coll, "r1", map[string]any{"status": "pending", "at": store.ServerTimestamp}))
	require.NoError(t, s.Merge(ctx, coll, "r1", map[string]any{"ids": store.ArrayUnion("a", "b")}))
	require.NoError(t, s.Update(ctx, coll, "r1", map[string]any{"status": "blocked"}))

	doc, err := s.Get(ctx, coll, "r1")
	require.NoError(t, err)
	assert.Equal(t, "blocked", doc.Data["status"])
	assert.Equal(t, []any{"a", "b"}, doc.Data["ids"])
	assert.False(t, store.ToTime(doc.Data["at"]).IsZero())

	docs, err := s.Query(ctx, store.Collection(coll).Where("status", store.OpIn, []string{"blocked", "denied"}))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, s.Delete(ctx, coll, "r1"))
	_, err = s.Get(ctx, coll, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, coll, "missing", map[string]any{"a": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreSubscription(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	coll := "it_" + t.Name()

	counts := make(chan int, 8)
	sub, err := s.Subscribe(ctx, store.Collection(coll), func(docs []store.Document, err error) {
		if err == nil {
			counts <- len(docs)
		}
	})
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Equal(t, 0, <-counts)
	require.NoError(t, s.Set(ctx, coll, "a", map[string]any{}))

	select {
	case n := <-counts:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after write")
	}
}
