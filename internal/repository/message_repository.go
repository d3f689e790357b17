package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository/base"
	"github.com/Freeeeeet/tutor_chat/internal/store"
)

type MessageRepository struct {
	*base.Repository
}

func NewMessageRepository(s store.Store) *MessageRepository {
	return &MessageRepository{Repository: base.NewRepository(s)}
}

// MessagesCollection путь подколлекции сообщений переписки
func MessagesCollection(conversationID string) string {
	return ConversationsCollection + "/" + conversationID + "/messages"
}

func messageFromDoc(doc store.Document) *model.Message {
	return &model.Message{
		ID:        doc.ID,
		SenderID:  base.String(doc.Data, "sender_id"),
		Text:      base.String(doc.Data, "text"),
		Timestamp: base.Time(doc.Data, "timestamp"),
		IsDeleted: base.Bool(doc.Data, "is_deleted"),
		IsEdited:  base.Bool(doc.Data, "is_edited"),
	}
}

func messagesFromDocs(docs []store.Document) []*model.Message {
	msgs := make([]*model.Message, 0, len(docs))
	for _, doc := range docs {
		msgs = append(msgs, messageFromDoc(doc))
	}
	return msgs
}

func messagesQuery(conversationID string) store.Query {
	return store.Collection(MessagesCollection(conversationID)).OrderBy("timestamp", store.Asc)
}

// Add добавляет сообщение в конец журнала; время ставит хранилище
func (r *MessageRepository) Add(ctx context.Context, conversationID, senderID, text string) (*model.Message, error) {
	id, err := r.Store().Add(ctx, MessagesCollection(conversationID), map[string]any{
		"sender_id":  senderID,
		"text":       text,
		"timestamp":  store.ServerTimestamp,
		"is_deleted": false,
		"is_edited":  false,
	})
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}

	msg, err := r.GetByID(ctx, conversationID, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("add message: %w", store.ErrNotFound)
	}

	return msg, nil
}

// GetByID получает сообщение по ID
func (r *MessageRepository) GetByID(ctx context.Context, conversationID, id string) (*model.Message, error) {
	doc, err := r.Store().Get(ctx, MessagesCollection(conversationID), id)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	return messageFromDoc(doc), nil
}

// MarkDeleted помечает сообщение удалённым и заменяет текст заглушкой
func (r *MessageRepository) MarkDeleted(ctx context.Context, conversationID, id string) error {
	err := r.Store().Update(ctx, MessagesCollection(conversationID), id, map[string]any{
		"is_deleted": true,
		"text":       model.DeletedMessageText,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// UpdateText заменяет текст сообщения, история правок не хранится
func (r *MessageRepository) UpdateText(ctx context.Context, conversationID, id, text string) error {
	err := r.Store().Update(ctx, MessagesCollection(conversationID), id, map[string]any{
		"is_edited": true,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}

	return nil
}

// List получает сообщения переписки по возрастанию времени
func (r *MessageRepository) List(ctx context.Context, conversationID string) ([]*model.Message, error) {
	docs, err := r.Store().Query(ctx, messagesQuery(conversationID))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return messagesFromDocs(docs), nil
}

// Latest получает самое новое сообщение переписки, nil для пустой
func (r *MessageRepository) Latest(ctx context.Context, conversationID string) (*model.Message, error) {
	docs, err := r.Store().Query(ctx, store.Collection(MessagesCollection(conversationID)).
		OrderBy("timestamp", store.Desc).
		Limit(1))
	if err != nil {
		return nil, fmt.Errorf("get latest message: %w", err)
	}

	if len(docs) == 0 {
		return nil, nil
	}

	return messageFromDoc(docs[0]), nil
}

// Watch подписывается на сообщения переписки
func (r *MessageRepository) Watch(ctx context.Context, conversationID string, fn func([]*model.Message, error)) (store.Subscription, error) {
	sub, err := r.Store().Subscribe(ctx, messagesQuery(conversationID), func(docs []store.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(messagesFromDocs(docs), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("watch messages: %w", err)
	}

	return sub, nil
}
