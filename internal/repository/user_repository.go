package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository/base"
	"github.com/Freeeeeet/tutor_chat/internal/store"
)

const UsersCollection = "users"

type UserRepository struct {
	*base.Repository
}

func NewUserRepository(s store.Store) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(s)}
}

func userFromDoc(doc store.Document) *model.User {
	return &model.User{
		ID:                   doc.ID,
		Role:                 model.Role(base.String(doc.Data, "role")),
		DisplayName:          base.String(doc.Data, "display_name"),
		PhotoURL:             base.String(doc.Data, "photo_url"),
		TelegramID:           base.Int64(doc.Data, "telegram_id"),
		ApprovedCounterparts: base.Strings(doc.Data, "approved_counterparts"),
		UpdatedAt:            base.Time(doc.Data, "updated_at"),
	}
}

// Upsert сохраняет профильные данные пользователя, не трогая индекс членства
// и привязку Telegram
func (r *UserRepository) Upsert(ctx context.Context, user *model.User) error {
	fields := map[string]any{
		"role":         string(user.Role),
		"display_name": user.DisplayName,
		"photo_url":    user.PhotoURL,
		"updated_at":   store.ServerTimestamp,
	}

	if err := r.Store().Merge(ctx, UsersCollection, user.ID, fields); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

// SetTelegramID привязывает Telegram ID, 0 снимает привязку
func (r *UserRepository) SetTelegramID(ctx context.Context, id string, telegramID int64) error {
	err := r.Store().Update(ctx, UsersCollection, id, map[string]any{
		"telegram_id": telegramID,
		"updated_at":  store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("set telegram id: %w", err)
	}
	return nil
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	doc, err := r.Store().Get(ctx, UsersCollection, id)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return userFromDoc(doc), nil
}

// GetByIDs получает пользователей по списку ID, отсутствующие пропускаются
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		user, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if user != nil {
			users = append(users, user)
		}
	}

	return users, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	docs, err := r.Store().Query(ctx, store.Collection(UsersCollection).
		Where("telegram_id", store.OpEqual, telegramID).
		Limit(1))
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	if len(docs) == 0 {
		return nil, nil
	}

	return userFromDoc(docs[0]), nil
}

// ListAll получает всех пользователей
func (r *UserRepository) ListAll(ctx context.Context) ([]*model.User, error) {
	docs, err := r.Store().Query(ctx, store.Collection(UsersCollection))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]*model.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, userFromDoc(doc))
	}

	return users, nil
}
