package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/repository/base"
	"github.com/Freeeeeet/tutor_chat/internal/store"
)

const counterpartsField = "approved_counterparts"

// MembershipRepository ведёт индекс членства: массив approved_counterparts
// в документе каждого пользователя
type MembershipRepository struct {
	*base.Repository
}

func NewMembershipRepository(s store.Store) *MembershipRepository {
	return &MembershipRepository{Repository: base.NewRepository(s)}
}

// Add добавляет counterpartID в индекс пользователя (идемпотентно)
func (r *MembershipRepository) Add(ctx context.Context, userID, counterpartID string) error {
	err := r.Store().Merge(ctx, UsersCollection, userID, map[string]any{
		counterpartsField: store.ArrayUnion(counterpartID),
	})
	if err != nil {
		return fmt.Errorf("add counterpart: %w", err)
	}

	return nil
}

// Remove убирает counterpartID из индекса пользователя (идемпотентно)
func (r *MembershipRepository) Remove(ctx context.Context, userID, counterpartID string) error {
	err := r.Store().Merge(ctx, UsersCollection, userID, map[string]any{
		counterpartsField: store.ArrayRemove(counterpartID),
	})
	if err != nil {
		return fmt.Errorf("remove counterpart: %w", err)
	}

	return nil
}

// Replace полностью перезаписывает индекс пользователя
func (r *MembershipRepository) Replace(ctx context.Context, userID string, counterpartIDs []string) error {
	if counterpartIDs == nil {
		counterpartIDs = []string{}
	}

	err := r.Store().Merge(ctx, UsersCollection, userID, map[string]any{
		counterpartsField: counterpartIDs,
	})
	if err != nil {
		return fmt.Errorf("replace counterparts: %w", err)
	}

	return nil
}

// Get получает индекс пользователя
func (r *MembershipRepository) Get(ctx context.Context, userID string) ([]string, error) {
	doc, err := r.Store().Get(ctx, UsersCollection, userID)
	if err != nil {
		if base.IsNotFound(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("get counterparts: %w", err)
	}

	return base.Strings(doc.Data, counterpartsField), nil
}
