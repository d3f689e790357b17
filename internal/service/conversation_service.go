package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/store"
	"go.uber.org/zap"
)

// InitialSummary сводка только что созданной переписки
const InitialSummary = "Переписка начата"

type ConversationService struct {
	mu       sync.Mutex
	convRepo *repository.ConversationRepository
	userRepo *repository.UserRepository
	gate     *GateService
	logger   *zap.Logger
}

func NewConversationService(
	convRepo *repository.ConversationRepository,
	userRepo *repository.UserRepository,
	gate *GateService,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		userRepo: userRepo,
		gate:     gate,
		logger:   logger,
	}
}

// GetOrCreate находит переписку пары или создаёт новую.
// Перед этим пара разово проверяется гейтом.
func (s *ConversationService) GetOrCreate(ctx context.Context, meID, otherID string) (*model.Conversation, bool, error) {
	active, err := s.gate.Check(ctx, meID, otherID)
	if err != nil {
		return nil, false, err
	}
	if !active {
		return nil, false, ErrBlocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.find(ctx, meID, otherID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	me, err := s.userRepo.GetByID(ctx, meID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	other, err := s.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if me == nil || other == nil {
		return nil, false, ErrUserNotFound
	}

	conv, err := s.convRepo.Create(ctx, &model.Conversation{
		ParticipantIDs: []string{me.ID, other.ID},
		ParticipantNames: map[string]string{
			me.ID:    me.DisplayName,
			other.ID: other.DisplayName,
		},
		ParticipantPhotoURLs: map[string]string{
			me.ID:    me.PhotoURL,
			other.ID: other.PhotoURL,
		},
		LastMessage: InitialSummary,
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("Conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Strings("participant_ids", conv.ParticipantIDs),
	)

	return conv, true, nil
}

// find перебирает переписки meID в поисках той, где есть otherID
func (s *ConversationService) find(ctx context.Context, meID, otherID string) (*model.Conversation, error) {
	convs, err := s.convRepo.ListByParticipant(ctx, meID)
	if err != nil {
		return nil, err
	}

	for _, conv := range convs {
		if conv.HasParticipant(otherID) {
			return conv, nil
		}
	}

	return nil, nil
}

// Get получает переписку; доступна только участникам
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
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

// List получает переписки пользователя, свежие первыми
func (s *ConversationService) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return s.convRepo.ListByParticipant(ctx, userID)
}

// ConversationFeed живой список переписок пользователя
type ConversationFeed struct {
	*ListFeed[*model.Conversation]
	convRepo *repository.ConversationRepository
}

// NewFeed создаёт живой список переписок для одного потребителя
func (s *ConversationService) NewFeed() *ConversationFeed {
	return &ConversationFeed{
		ListFeed: newListFeed[*model.Conversation]("conversations", s.logger),
		convRepo: s.convRepo,
	}
}

// Watch переключает список на переписки userID
func (f *ConversationFeed) Watch(ctx context.Context, userID string) error {
	return f.restart(func(fn func([]*model.Conversation, error)) (store.Subscription, error) {
		return f.convRepo.WatchByParticipant(ctx, userID, fn)
	})
}
