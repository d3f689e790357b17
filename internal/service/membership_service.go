package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"go.uber.org/zap"
)

// MembershipService поддерживает индекс approved_counterparts в соответствии
// со статусами отношений. Записи индекса не транзакционны относительно
// записей отношений.
type MembershipService struct {
	membershipRepo *repository.MembershipRepository
	relRepo        *repository.RelationshipRepository
	userRepo       *repository.UserRepository
	logger         *zap.Logger
}

func NewMembershipService(
	membershipRepo *repository.MembershipRepository,
	relRepo *repository.RelationshipRepository,
	userRepo *repository.UserRepository,
	logger *zap.Logger,
) *MembershipService {
	return &MembershipService{
		membershipRepo: membershipRepo,
		relRepo:        relRepo,
		userRepo:       userRepo,
		logger:         logger,
	}
}

// ReconcileReport итог одной сверки
type ReconcileReport struct {
	UsersChecked int
	UsersFixed   int
}

// Link добавляет стороны пары в индексы друг друга. Обе записи выполняются
// даже если первая упала.
func (s *MembershipService) Link(ctx context.Context, pair model.Pair) error {
	errStudent := s.membershipRepo.Add(ctx, pair.StudentID, pair.InstructorID)
	errInstructor := s.membershipRepo.Add(ctx, pair.InstructorID, pair.StudentID)
	return errors.Join(errStudent, errInstructor)
}

// Unlink убирает стороны пары из индексов друг друга (идемпотентно)
func (s *MembershipService) Unlink(ctx context.Context, pair model.Pair) error {
	errStudent := s.membershipRepo.Remove(ctx, pair.StudentID, pair.InstructorID)
	errInstructor := s.membershipRepo.Remove(ctx, pair.InstructorID, pair.StudentID)
	return errors.Join(errStudent, errInstructor)
}

// Counterparts получает профили одобренных контрагентов пользователя
func (s *MembershipService) Counterparts(ctx context.Context, userID string) ([]*model.User, error) {
	ids, err := s.membershipRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get counterpart ids: %w", err)
	}

	if len(ids) == 0 {
		return []*model.User{}, nil
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get counterparts: %w", err)
	}

	return users, nil
}

// Reconcile пересобирает индекс каждого пользователя из одобренных записей
// отношений и перезаписывает только расходящиеся индексы
func (s *MembershipService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	approved, err := s.relRepo.List(ctx, repository.RelationshipFilter{
		Statuses: []model.RelationshipStatus{model.RelationshipApproved},
	})
	if err != nil {
		return report, fmt.Errorf("list approved relationships: %w", err)
	}

	expected := make(map[string][]string)
	for _, rel := range approved {
		expected[rel.StudentID] = append(expected[rel.StudentID], rel.InstructorID)
		expected[rel.InstructorID] = append(expected[rel.InstructorID], rel.StudentID)
	}

	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("list users: %w", err)
	}

	known := make(map[string]bool, len(users))
	for _, user := range users {
		known[user.ID] = true
		report.UsersChecked++

		want := normalizeIDs(expected[user.ID])
		have := normalizeIDs(user.ApprovedCounterparts)
		if slices.Equal(want, have) {
			continue
		}

		if err := s.membershipRepo.Replace(ctx, user.ID, want); err != nil {
			return report, fmt.Errorf("replace counterparts of %s: %w", user.ID, err)
		}
		report.UsersFixed++

		s.logger.Info("Membership index repaired",
			zap.String("user_id", user.ID),
			zap.Strings("was", have),
			zap.Strings("now", want),
		)
	}

	for id := range expected {
		if !known[id] {
			s.logger.Warn("Approved relationship references unknown user", zap.String("user_id", id))
		}
	}

	return report, nil
}

func normalizeIDs(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
