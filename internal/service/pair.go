package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
)

// resolvePair загружает обе стороны и упорядочивает их по ролям
func resolvePair(ctx context.Context, userRepo *repository.UserRepository, aID, bID string) (model.Pair, *model.User, *model.User, error) {
	if aID == "" || bID == "" || aID == bID {
		return model.Pair{}, nil, nil, ErrInvalidParticipants
	}

	a, err := userRepo.GetByID(ctx, aID)
	if err != nil {
		return model.Pair{}, nil, nil, fmt.Errorf("get user: %w", err)
	}
	b, err := userRepo.GetByID(ctx, bID)
	if err != nil {
		return model.Pair{}, nil, nil, fmt.Errorf("get user: %w", err)
	}
	if a == nil || b == nil {
		return model.Pair{}, nil, nil, ErrUserNotFound
	}

	pair, err := model.CanonicalPair(*a, *b)
	if err != nil {
		return model.Pair{}, nil, nil, err
	}

	return pair, a, b, nil
}
