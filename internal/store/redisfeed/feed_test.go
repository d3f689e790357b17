package redisfeed

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/store"
	"github.com/Freeeeeet/tutor_chat/internal/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestFeed(t *testing.T) *Feed {
	s := miniredis.RunT(t)
	feed, err := New("redis://"+s.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = feed.Close() })
	return feed
}

func TestNewFailsOnBadURL(t *testing.T) {
	_, err := New("not-a-url", nil)
	assert.Error(t, err)
}

func TestPublishReachesListener(t *testing.T) {
	feed := setupTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Listen(ctx, "relationships")
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, "relationships"))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal received")
	}
}

func TestListenerIgnoresOtherCollections(t *testing.T) {
	feed := setupTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Listen(ctx, "relationships")
	require.NoError(t, err)
	require.NoError(t, feed.Publish(ctx, "users"))

	select {
	case <-ch:
		t.Fatal("unexpected signal for another collection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListenClosesOnCancel(t *testing.T) {
	feed := setupTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := feed.Listen(ctx, "relationships")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

// Два хранилища с общим фидом: подписка на одном видит запись в другом.
func TestSharedFeedBetweenStores(t *testing.T) {
	feed := setupTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := memory.New(memory.WithFeed(feed))
	writer := memory.New(memory.WithFeed(feed))

	signals := make(chan int, 8)
	sub, err := reader.Subscribe(ctx, store.Collection("relationships"), func(docs []store.Document, err error) {
		if err == nil {
			signals <- len(docs)
		}
	})
	require.NoError(t, err)
	defer sub.Cancel()

	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, writer.Set(ctx, "relationships", "r1", map[string]any{"status": "pending"}))

	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("write in another store did not trigger a snapshot")
	}
}
