package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository/base"
	"github.com/Freeeeeet/tutor_chat/internal/store"
)

const ConversationsCollection = "conversations"

type ConversationRepository struct {
	*base.Repository
}

func NewConversationRepository(s store.Store) *ConversationRepository {
	return &ConversationRepository{Repository: base.NewRepository(s)}
}

func conversationFromDoc(doc store.Document) *model.Conversation {
	return &model.Conversation{
		ID:                   doc.ID,
		ParticipantIDs:       base.Strings(doc.Data, "participant_ids"),
		ParticipantNames:     base.StringMap(doc.Data, "participant_names"),
		ParticipantPhotoURLs: base.StringMap(doc.Data, "participant_photo_urls"),
		LastMessage:          base.String(doc.Data, "last_message"),
		LastMessageTimestamp: base.Time(doc.Data, "last_message_timestamp"),
		CreatedAt:            base.Time(doc.Data, "created_at"),
	}
}

func conversationsFromDocs(docs []store.Document) []*model.Conversation {
	convs := make([]*model.Conversation, 0, len(docs))
	for _, doc := range docs {
		convs = append(convs, conversationFromDoc(doc))
	}
	return convs
}

// Create создаёт переписку с начальным сообщением-сводкой
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	id, err := r.Store().Add(ctx, ConversationsCollection, map[string]any{
		"participant_ids":        conv.ParticipantIDs,
		"participant_names":      conv.ParticipantNames,
		"participant_photo_urls": conv.ParticipantPhotoURLs,
		"last_message":           conv.LastMessage,
		"last_message_timestamp": store.ServerTimestamp,
		"created_at":             store.ServerTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	created, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("create conversation: %w", store.ErrNotFound)
	}

	return created, nil
}

// GetByID получает переписку по ID
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	doc, err := r.Store().Get(ctx, ConversationsCollection, id)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return conversationFromDoc(doc), nil
}

func participantQuery(userID string) store.Query {
	return store.Collection(ConversationsCollection).
		Where("participant_ids", store.OpArrayContains, userID).
		OrderBy("last_message_timestamp", store.Desc)
}

// ListByParticipant получает переписки пользователя, свежие первыми
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*model.Conversation, error) {
	docs, err := r.Store().Query(ctx, participantQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	return conversationsFromDocs(docs), nil
}

// UpdateSummary обновляет последнее сообщение; время ставит хранилище
func (r *ConversationRepository) UpdateSummary(ctx context.Context, id, lastMessage string) error {
	err := r.Store().Update(ctx, ConversationsCollection, id, map[string]any{
		"last_message":           lastMessage,
		"last_message_timestamp": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("update conversation summary: %w", err)
	}

	return nil
}

// SetLastMessage заменяет текст последнего сообщения, не сдвигая время
// переписки
func (r *ConversationRepository) SetLastMessage(ctx context.Context, id, lastMessage string) error {
	err := r.Store().Update(ctx, ConversationsCollection, id, map[string]any{
		"last_message": lastMessage,
	})
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}

	return nil
}

// WatchByParticipant подписывается на список переписок пользователя
func (r *ConversationRepository) WatchByParticipant(ctx context.Context, userID string, fn func([]*model.Conversation, error)) (store.Subscription, error) {
	sub, err := r.Store().Subscribe(ctx, participantQuery(userID), func(docs []store.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(conversationsFromDocs(docs), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("watch conversations: %w", err)
	}

	return sub, nil
}
