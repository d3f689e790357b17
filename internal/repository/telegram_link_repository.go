package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository/base"
	"github.com/Freeeeeet/tutor_chat/internal/store"
)

const TelegramLinksCollection = "telegram_link_codes"

type TelegramLinkRepository struct {
	*base.Repository
}

func NewTelegramLinkRepository(s store.Store) *TelegramLinkRepository {
	return &TelegramLinkRepository{Repository: base.NewRepository(s)}
}

// Create сохраняет код привязки
func (r *TelegramLinkRepository) Create(ctx context.Context, code *model.TelegramLinkCode) error {
	err := r.Store().Set(ctx, TelegramLinksCollection, code.Code, map[string]any{
		"user_id":    code.UserID,
		"expires_at": code.ExpiresAt.UnixMicro(),
	})
	if err != nil {
		return fmt.Errorf("create telegram link code: %w", err)
	}

	return nil
}

// GetByCode получает код по строке
func (r *TelegramLinkRepository) GetByCode(ctx context.Context, code string) (*model.TelegramLinkCode, error) {
	doc, err := r.Store().Get(ctx, TelegramLinksCollection, code)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get telegram link code: %w", err)
	}

	return &model.TelegramLinkCode{
		Code:      doc.ID,
		UserID:    base.String(doc.Data, "user_id"),
		ExpiresAt: base.Time(doc.Data, "expires_at"),
	}, nil
}

// Delete удаляет код
func (r *TelegramLinkRepository) Delete(ctx context.Context, code string) error {
	if err := r.Store().Delete(ctx, TelegramLinksCollection, code); err != nil {
		return fmt.Errorf("delete telegram link code: %w", err)
	}
	return nil
}
