package service

import (
	"context"
	"strings"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/store"
	"go.uber.org/zap"
)

// Gate сообщает, разрешена ли сейчас переписка
type Gate interface {
	Active() bool
}

// StaticGate фиксированное значение гейта, например результат разовой проверки
type StaticGate bool

func (g StaticGate) Active() bool { return bool(g) }

type MessageService struct {
	msgRepo  *repository.MessageRepository
	convRepo *repository.ConversationRepository
	logger   *zap.Logger
}

func NewMessageService(msgRepo *repository.MessageRepository, convRepo *repository.ConversationRepository, logger *zap.Logger) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		convRepo: convRepo,
		logger:   logger,
	}
}

// Send добавляет сообщение, если гейт открыт, и обновляет сводку переписки
func (s *MessageService) Send(ctx context.Context, gate Gate, conversationID, senderID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	if _, err := s.participantConversation(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	if gate == nil || !gate.Active() {
		return nil, ErrBlocked
	}

	msg, err := s.msgRepo.Add(ctx, conversationID, senderID, text)
	if err != nil {
		return nil, err
	}

	// сообщение уже в журнале, сводка вторична
	if err := s.convRepo.UpdateSummary(ctx, conversationID, text); err != nil {
		s.logger.Error("Failed to update conversation summary",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Message sent",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", msg.ID),
		zap.String("sender_id", senderID),
	)

	return msg, nil
}

// Delete помечает сообщение удалённым; удалить может только отправитель
func (s *MessageService) Delete(ctx context.Context, conversationID, actorID, messageID string) error {
	if _, err := s.ownMessage(ctx, conversationID, actorID, messageID); err != nil {
		return err
	}

	if err := s.msgRepo.MarkDeleted(ctx, conversationID, messageID); err != nil {
		return err
	}
	s.refreshSummary(ctx, conversationID, messageID, model.DeletedMessageText)

	s.logger.Info("Message deleted",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", messageID),
	)

	return nil
}

// Update заменяет текст сообщения; изменить может только отправитель
func (s *MessageService) Update(ctx context.Context, conversationID, actorID, messageID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.ownMessage(ctx, conversationID, actorID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, ErrMessageNotFound
	}

	if err := s.msgRepo.UpdateText(ctx, conversationID, messageID, text); err != nil {
		return nil, err
	}
	s.refreshSummary(ctx, conversationID, messageID, text)

	s.logger.Info("Message edited",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", messageID),
	)

	msg.Text = text
	msg.IsEdited = true
	return msg, nil
}

// refreshSummary переписывает last_message, если изменено самое новое
// сообщение. Ошибки только логируются: журнал уже обновлён.
func (s *MessageService) refreshSummary(ctx context.Context, conversationID, messageID, text string) {
	latest, err := s.msgRepo.Latest(ctx, conversationID)
	if err == nil && (latest == nil || latest.ID != messageID) {
		return
	}
	if err == nil {
		err = s.convRepo.SetLastMessage(ctx, conversationID, text)
	}
	if err != nil {
		s.logger.Error("Failed to refresh conversation summary",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// List получает сообщения переписки по возрастанию времени
func (s *MessageService) List(ctx context.Context, conversationID, userID string) ([]*model.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	return s.msgRepo.List(ctx, conversationID)
}

func (s *MessageService) participantConversation(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	return conv, nil
}

func (s *MessageService) ownMessage(ctx context.Context, conversationID, actorID, messageID string) (*model.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	msg, err := s.msgRepo.GetByID(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != actorID {
		return nil, ErrNotSender
	}

	return msg, nil
}

// MessageFeed живой список сообщений одной переписки
type MessageFeed struct {
	*ListFeed[*model.Message]
	msgRepo *repository.MessageRepository
}

// NewFeed создаёт живой список сообщений для одного потребителя
func (s *MessageService) NewFeed() *MessageFeed {
	return &MessageFeed{
		ListFeed: newListFeed[*model.Message]("messages", s.logger),
		msgRepo:  s.msgRepo,
	}
}

// Watch переключает список на сообщения conversationID
func (f *MessageFeed) Watch(ctx context.Context, conversationID string) error {
	return f.restart(func(fn func([]*model.Message, error)) (store.Subscription, error) {
		return f.msgRepo.Watch(ctx, conversationID, fn)
	})
}
