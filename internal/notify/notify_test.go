package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type notifierFunc func(ctx context.Context, n *model.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n *model.Notification) error { return f(ctx, n) }

func TestStoreNotifierPersists(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepository(memory.New())
	n := NewStoreNotifier(repo, zap.NewNop())

	require.NoError(t, n.Notify(ctx, &model.Notification{
		RecipientID: "i1",
		Title:       "Новая заявка",
		Type:        model.NotificationRequestReceived,
		RelatedID:   "rel_s1_i1",
	}))
	require.NoError(t, n.Notify(ctx, &model.Notification{
		RecipientID: "i1",
		Type:        model.NotificationRemoved,
	}))

	got, err := repo.ListByRecipient(ctx, "i1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.NotificationRemoved, got[0].Type, "newest first")
	assert.Equal(t, "rel_s1_i1", got[1].RelatedID)
	assert.False(t, got[1].CreatedAt.IsZero())

	limited, err := repo.ListByRecipient(ctx, "i1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("telegram down")
	var delivered []string

	m := Multi{
		notifierFunc(func(_ context.Context, n *model.Notification) error {
			delivered = append(delivered, "first:"+n.RecipientID)
			return boom
		}),
		nil,
		notifierFunc(func(_ context.Context, n *model.Notification) error {
			delivered = append(delivered, "second:"+n.RecipientID)
			return nil
		}),
	}

	err := m.Notify(context.Background(), &model.Notification{RecipientID: "s1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first:s1", "second:s1"}, delivered)
}
