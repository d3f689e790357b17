package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"go.uber.org/zap"
)

// ChatService открывает сессии переписки: живой гейт пары плюс живой список
// сообщений
type ChatService struct {
	conversations *ConversationService
	messages      *MessageService
	gate          *GateService
	logger        *zap.Logger
}

func NewChatService(conversations *ConversationService, messages *MessageService, gate *GateService, logger *zap.Logger) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		gate:          gate,
		logger:        logger,
	}
}

// ChatSession открытая переписка одного пользователя. Close обязателен.
type ChatSession struct {
	conv     *model.Conversation
	userID   string
	gate     *GateWatcher
	feed     *MessageFeed
	messages *MessageService
}

// Open открывает переписку conversationID для userID
func (s *ChatService) Open(ctx context.Context, userID, conversationID string) (*ChatSession, error) {
	conv, err := s.conversations.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	session := &ChatSession{
		conv:     conv,
		userID:   userID,
		gate:     s.gate.NewWatcher(),
		feed:     s.messages.NewFeed(),
		messages: s.messages,
	}

	if err := session.gate.Watch(ctx, userID, conv.Counterpart(userID)); err != nil {
		return nil, fmt.Errorf("open gate: %w", err)
	}
	if err := session.feed.Watch(ctx, conv.ID); err != nil {
		session.gate.Stop()
		return nil, fmt.Errorf("open messages: %w", err)
	}

	s.logger.Info("Chat session opened",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)

	return session, nil
}

// Conversation возвращает переписку сессии
func (c *ChatSession) Conversation() *model.Conversation {
	return c.conv
}

// Gate возвращает живой гейт пары
func (c *ChatSession) Gate() *GateWatcher {
	return c.gate
}

// Messages возвращает живой список сообщений
func (c *ChatSession) Messages() *MessageFeed {
	return c.feed
}

// Send отправляет сообщение, сверяясь с живым гейтом
func (c *ChatSession) Send(ctx context.Context, text string) (*model.Message, error) {
	return c.messages.Send(ctx, c.gate, c.conv.ID, c.userID, text)
}

// Close отменяет обе подписки
func (c *ChatSession) Close() {
	c.gate.Stop()
	c.feed.Stop()
}
