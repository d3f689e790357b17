package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"go.uber.org/zap"
)

// RelationshipService владеет записями отношений и их машиной состояний.
// Все мутации проходят через один мьютекс, поэтому переходы одной пары
// внутри процесса не перемешиваются.
type RelationshipService struct {
	mu         sync.Mutex
	relRepo    *repository.RelationshipRepository
	userRepo   *repository.UserRepository
	membership *MembershipService
	notifier   Notifier
	logger     *zap.Logger
}

func NewRelationshipService(
	relRepo *repository.RelationshipRepository,
	userRepo *repository.UserRepository,
	membership *MembershipService,
	notifier Notifier,
	logger *zap.Logger,
) *RelationshipService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RelationshipService{
		relRepo:    relRepo,
		userRepo:   userRepo,
		membership: membership,
		notifier:   notifier,
		logger:     logger,
	}
}

// ============ Переходы ============

// SendRequest создаёт заявку от fromID к toID.
// Повторная заявка после отказа или завершения снова становится pending.
func (s *RelationshipService) SendRequest(ctx context.Context, fromID, toID string) (*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, from, _, err := resolvePair(ctx, s.userRepo, fromID, toID)
	if err != nil {
		return nil, err
	}

	existing, err := s.relRepo.FindByPair(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("find relationships: %w", err)
	}

	// blocked важнее approved, approved важнее pending
	var pending, approved bool
	for _, rel := range existing {
		switch rel.Status {
		case model.RelationshipBlocked:
			return nil, ErrBlocked
		case model.RelationshipApproved:
			approved = true
		case model.RelationshipPending:
			pending = true
		}
	}
	if approved {
		return nil, ErrAlreadyApproved
	}
	if pending {
		return nil, ErrAlreadyPending
	}

	rel := &model.Relationship{
		ID:           model.RelationshipID(pair),
		StudentID:    pair.StudentID,
		InstructorID: pair.InstructorID,
		Status:       model.RelationshipPending,
		BlockedBy:    model.SideNone,
		RequestedBy:  pair.SideOf(fromID),
	}
	if err := s.relRepo.Put(ctx, rel); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// старые записи пары с другими id больше не нужны
	s.deleteAllExcept(ctx, existing, rel.ID)

	s.logger.Info("Relationship request sent",
		zap.String("relationship_id", rel.ID),
		zap.String("student_id", pair.StudentID),
		zap.String("instructor_id", pair.InstructorID),
		zap.String("requested_by", string(rel.RequestedBy)),
	)

	emit(ctx, s.notifier, s.logger, &model.Notification{
		RecipientID: pair.Other(fromID),
		Title:       "Новая заявка",
		Message:     fmt.Sprintf("%s хочет начать общение с вами", from.DisplayName),
		Type:        model.NotificationRequestReceived,
		RelatedID:   rel.ID,
	})

	return s.reload(ctx, rel.ID)
}

// Approve одобряет заявку; одобрить может только получатель
func (s *RelationshipService) Approve(ctx context.Context, actorID, relationshipID string) (*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.pendingForRecipient(ctx, actorID, relationshipID)
	if err != nil {
		return nil, err
	}

	if err := s.relRepo.UpdateStatus(ctx, rel.ID, model.RelationshipApproved, model.SideNone); err != nil {
		return nil, fmt.Errorf("approve request: %w", err)
	}

	// индекс членства не транзакционен: ошибку исправит сверка
	if err := s.membership.Link(ctx, rel.Pair()); err != nil {
		s.logger.Error("Failed to link membership after approve",
			zap.String("relationship_id", rel.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Relationship request approved",
		zap.String("relationship_id", rel.ID),
		zap.String("actor_id", actorID),
	)

	actor, _ := s.userRepo.GetByID(ctx, actorID)
	emit(ctx, s.notifier, s.logger, &model.Notification{
		RecipientID: rel.Pair().Other(actorID),
		Title:       "Заявка одобрена",
		Message:     fmt.Sprintf("%s принял(а) вашу заявку", displayName(actor)),
		Type:        model.NotificationRequestApproved,
		RelatedID:   rel.ID,
	})

	return s.reload(ctx, rel.ID)
}

// Deny отклоняет заявку; отклонить может только получатель
func (s *RelationshipService) Deny(ctx context.Context, actorID, relationshipID string) (*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.pendingForRecipient(ctx, actorID, relationshipID)
	if err != nil {
		return nil, err
	}

	if err := s.relRepo.UpdateStatus(ctx, rel.ID, model.RelationshipDenied, model.SideNone); err != nil {
		return nil, fmt.Errorf("deny request: %w", err)
	}

	s.logger.Info("Relationship request denied",
		zap.String("relationship_id", rel.ID),
		zap.String("actor_id", actorID),
	)

	actor, _ := s.userRepo.GetByID(ctx, actorID)
	emit(ctx, s.notifier, s.logger, &model.Notification{
		RecipientID: rel.Pair().Other(actorID),
		Title:       "Заявка отклонена",
		Message:     fmt.Sprintf("%s отклонил(а) вашу заявку", displayName(actor)),
		Type:        model.NotificationRequestDenied,
		RelatedID:   rel.ID,
	})

	return s.reload(ctx, rel.ID)
}

// Cancel удаляет заявку; отменить может только отправитель
func (s *RelationshipService) Cancel(ctx context.Context, actorID, relationshipID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.relRepo.GetByID(ctx, relationshipID)
	if err != nil {
		return fmt.Errorf("get request: %w", err)
	}
	if rel == nil {
		return ErrRequestNotFound
	}

	side := rel.Pair().SideOf(actorID)
	if side == model.SideNone {
		return ErrNotParticipant
	}
	if !rel.IsPending() {
		return ErrRequestNotPending
	}
	if rel.RequestedBy != model.SideNone && rel.RequestedBy != side {
		return ErrNotRequester
	}

	if err := s.relRepo.Delete(ctx, rel.ID); err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}

	s.logger.Info("Relationship request cancelled",
		zap.String("relationship_id", rel.ID),
		zap.String("actor_id", actorID),
	)

	return nil
}

// Block блокирует пару от имени initiatorID. Запись не обязана существовать.
// Если пару уже заблокировала другая сторона, её блокировка сохраняется.
func (s *RelationshipService) Block(ctx context.Context, initiatorID, otherID string) (*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, _, _, err := resolvePair(ctx, s.userRepo, initiatorID, otherID)
	if err != nil {
		return nil, err
	}
	side := pair.SideOf(initiatorID)

	existing, err := s.relRepo.FindByPair(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("find relationships: %w", err)
	}

	id := model.RelationshipID(pair)
	if len(existing) == 0 {
		rel := &model.Relationship{
			ID:           id,
			StudentID:    pair.StudentID,
			InstructorID: pair.InstructorID,
			Status:       model.RelationshipBlocked,
			BlockedBy:    side,
		}
		if err := s.relRepo.Put(ctx, rel); err != nil {
			return nil, fmt.Errorf("create blocked relationship: %w", err)
		}
	} else {
		id = existing[0].ID
		for _, rel := range existing {
			if rel.IsBlocked() && rel.BlockedBy != model.SideNone {
				continue
			}
			if err := s.relRepo.UpdateStatus(ctx, rel.ID, model.RelationshipBlocked, side); err != nil {
				return nil, fmt.Errorf("block relationship: %w", err)
			}
		}
	}

	if err := s.membership.Unlink(ctx, pair); err != nil {
		s.logger.Error("Failed to unlink membership after block",
			zap.String("student_id", pair.StudentID),
			zap.String("instructor_id", pair.InstructorID),
			zap.Error(err),
		)
	}

	s.logger.Info("Relationship blocked",
		zap.String("student_id", pair.StudentID),
		zap.String("instructor_id", pair.InstructorID),
		zap.String("blocked_by", string(side)),
	)

	return s.reload(ctx, id)
}

// Unblock снимает блокировку: удаляет все заблокированные записи пары.
// Снять блокировку может только та сторона, которая её поставила.
func (s *RelationshipService) Unblock(ctx context.Context, initiatorID, otherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, _, _, err := resolvePair(ctx, s.userRepo, initiatorID, otherID)
	if err != nil {
		return err
	}
	side := pair.SideOf(initiatorID)

	blocked, err := s.relRepo.FindByPairAndStatuses(ctx, pair, []model.RelationshipStatus{model.RelationshipBlocked})
	if err != nil {
		return fmt.Errorf("find blocked relationships: %w", err)
	}
	if len(blocked) == 0 {
		return nil
	}

	for _, rel := range blocked {
		if rel.BlockedBy != model.SideNone && rel.BlockedBy != side {
			return ErrNotBlocker
		}
	}

	for _, rel := range blocked {
		if err := s.relRepo.Delete(ctx, rel.ID); err != nil {
			return fmt.Errorf("unblock relationship: %w", err)
		}
	}

	s.logger.Info("Relationship unblocked",
		zap.String("student_id", pair.StudentID),
		zap.String("instructor_id", pair.InstructorID),
		zap.Int("deleted", len(blocked)),
	)

	return nil
}

// Remove разрывает отношения: чистит индекс членства и удаляет все записи пары
func (s *RelationshipService) Remove(ctx context.Context, initiatorID, otherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, _, _, err := resolvePair(ctx, s.userRepo, initiatorID, otherID)
	if err != nil {
		return err
	}

	if err := s.membership.Unlink(ctx, pair); err != nil {
		s.logger.Error("Failed to unlink membership on remove",
			zap.String("student_id", pair.StudentID),
			zap.String("instructor_id", pair.InstructorID),
			zap.Error(err),
		)
	}

	existing, err := s.relRepo.FindByPair(ctx, pair)
	if err != nil {
		return fmt.Errorf("find relationships: %w", err)
	}

	wasApproved := false
	for _, rel := range existing {
		if rel.IsApproved() {
			wasApproved = true
		}
		if err := s.relRepo.Delete(ctx, rel.ID); err != nil {
			return fmt.Errorf("remove relationship: %w", err)
		}
	}

	s.logger.Info("Relationship removed",
		zap.String("student_id", pair.StudentID),
		zap.String("instructor_id", pair.InstructorID),
		zap.Int("deleted", len(existing)),
	)

	if wasApproved {
		initiator, _ := s.userRepo.GetByID(ctx, initiatorID)
		emit(ctx, s.notifier, s.logger, &model.Notification{
			RecipientID: pair.Other(initiatorID),
			Title:       "Связь удалена",
			Message:     fmt.Sprintf("%s удалил(а) вас из контактов", displayName(initiator)),
			Type:        model.NotificationRemoved,
		})
	}

	return nil
}

// Complete завершает одобренные отношения штатно. Запись остаётся в статусе
// completed, индекс членства очищается; новая заявка снова возможна.
func (s *RelationshipService) Complete(ctx context.Context, initiatorID, otherID string) (*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, _, _, err := resolvePair(ctx, s.userRepo, initiatorID, otherID)
	if err != nil {
		return nil, err
	}

	approved, err := s.relRepo.FindByPairAndStatuses(ctx, pair, []model.RelationshipStatus{model.RelationshipApproved})
	if err != nil {
		return nil, fmt.Errorf("find approved relationships: %w", err)
	}
	if len(approved) == 0 {
		return nil, ErrNotApproved
	}

	for _, rel := range approved {
		if err := s.relRepo.UpdateStatus(ctx, rel.ID, model.RelationshipCompleted, model.SideNone); err != nil {
			return nil, fmt.Errorf("complete relationship: %w", err)
		}
	}

	if err := s.membership.Unlink(ctx, pair); err != nil {
		s.logger.Error("Failed to unlink membership on complete",
			zap.String("student_id", pair.StudentID),
			zap.String("instructor_id", pair.InstructorID),
			zap.Error(err),
		)
	}

	s.logger.Info("Relationship completed",
		zap.String("student_id", pair.StudentID),
		zap.String("instructor_id", pair.InstructorID),
	)

	initiator, _ := s.userRepo.GetByID(ctx, initiatorID)
	emit(ctx, s.notifier, s.logger, &model.Notification{
		RecipientID: pair.Other(initiatorID),
		Title:       "Занятия завершены",
		Message:     fmt.Sprintf("%s завершил(а) ваши занятия", displayName(initiator)),
		Type:        model.NotificationCompleted,
		RelatedID:   approved[0].ID,
	})

	return s.reload(ctx, approved[0].ID)
}

// ReconcileMembership запускает сверку индекса членства под тем же мьютексом,
// что и переходы
func (s *RelationshipService) ReconcileMembership(ctx context.Context) (ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.membership.Reconcile(ctx)
}

// ============ Выборки ============

// Get получает запись по ID; видна только участникам пары
func (s *RelationshipService) Get(ctx context.Context, userID, relationshipID string) (*model.Relationship, error) {
	rel, err := s.relRepo.GetByID(ctx, relationshipID)
	if err != nil {
		return nil, fmt.Errorf("get relationship: %w", err)
	}
	if rel == nil {
		return nil, ErrRequestNotFound
	}
	if !rel.Pair().Has(userID) {
		return nil, ErrNotParticipant
	}

	return rel, nil
}

// ForPair получает все записи пары
func (s *RelationshipService) ForPair(ctx context.Context, aID, bID string) ([]*model.Relationship, error) {
	pair, _, _, err := resolvePair(ctx, s.userRepo, aID, bID)
	if err != nil {
		return nil, err
	}

	rels, err := s.relRepo.FindByPair(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("find relationships: %w", err)
	}

	return rels, nil
}

// List получает записи пользователя с указанными статусами (все, если пусто)
func (s *RelationshipService) List(ctx context.Context, userID string, statuses ...model.RelationshipStatus) ([]*model.Relationship, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	filter := repository.RelationshipFilter{Statuses: statuses}
	if user.IsInstructor() {
		filter.InstructorID = userID
	} else {
		filter.StudentID = userID
	}

	rels, err := s.relRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}

	return rels, nil
}

// IncomingRequests получает ожидающие заявки, адресованные пользователю
func (s *RelationshipService) IncomingRequests(ctx context.Context, userID string) ([]*model.Relationship, error) {
	return s.requests(ctx, userID, false)
}

// OutgoingRequests получает ожидающие заявки, отправленные пользователем
func (s *RelationshipService) OutgoingRequests(ctx context.Context, userID string) ([]*model.Relationship, error) {
	return s.requests(ctx, userID, true)
}

func (s *RelationshipService) requests(ctx context.Context, userID string, outgoing bool) ([]*model.Relationship, error) {
	pending, err := s.List(ctx, userID, model.RelationshipPending)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Relationship, 0, len(pending))
	for _, rel := range pending {
		mine := rel.RequestedBy == rel.Pair().SideOf(userID)
		if mine == outgoing {
			out = append(out, rel)
		}
	}

	return out, nil
}

// ============ Вспомогательные ============

// pendingForRecipient проверяет, что заявка ждёт ответа именно от actorID
func (s *RelationshipService) pendingForRecipient(ctx context.Context, actorID, relationshipID string) (*model.Relationship, error) {
	rel, err := s.relRepo.GetByID(ctx, relationshipID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if rel == nil {
		return nil, ErrRequestNotFound
	}

	side := rel.Pair().SideOf(actorID)
	if side == model.SideNone {
		return nil, ErrNotParticipant
	}
	if !rel.IsPending() {
		return nil, ErrRequestNotPending
	}
	if rel.RequestedBy == side {
		return nil, ErrNotRecipient
	}

	return rel, nil
}

func (s *RelationshipService) deleteAllExcept(ctx context.Context, rels []*model.Relationship, keepID string) {
	for _, rel := range rels {
		if rel.ID == keepID {
			continue
		}
		if err := s.relRepo.Delete(ctx, rel.ID); err != nil {
			s.logger.Warn("Failed to delete stale relationship",
				zap.String("relationship_id", rel.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *RelationshipService) reload(ctx context.Context, id string) (*model.Relationship, error) {
	rel, err := s.relRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload relationship: %w", err)
	}
	if rel == nil {
		return nil, ErrRequestNotFound
	}

	return rel, nil
}

func displayName(u *model.User) string {
	if u == nil || u.DisplayName == "" {
		return "Пользователь"
	}
	return u.DisplayName
}
