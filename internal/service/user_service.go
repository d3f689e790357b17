package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"go.uber.org/zap"
)

// TelegramLinkTTL срок жизни кода привязки Telegram
const TelegramLinkTTL = 15 * time.Minute

type UserService struct {
	userRepo *repository.UserRepository
	linkRepo *repository.TelegramLinkRepository
	logger   *zap.Logger
	now      func() time.Time

	// linkMu сериализует привязки, чтобы один Telegram ID не достался двоим
	linkMu sync.Mutex
}

func NewUserService(userRepo *repository.UserRepository, linkRepo *repository.TelegramLinkRepository, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		linkRepo: linkRepo,
		logger:   logger,
		now:      time.Now,
	}
}

// SyncProfile сохраняет данные личности, пришедшие от провайдера входа.
// Запись выполняется только если профиль новый или изменился. Telegram ID
// здесь не меняется: он привязывается только через бота (LinkTelegram).
func (s *UserService) SyncProfile(ctx context.Context, identity *model.User) (*model.User, error) {
	if identity.ID == "" {
		return nil, ErrNotAuthenticated
	}
	if identity.Role != model.RoleStudent && identity.Role != model.RoleInstructor {
		return nil, fmt.Errorf("unknown role %q", identity.Role)
	}

	existing, err := s.userRepo.GetByID(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	if existing != nil &&
		existing.Role == identity.Role &&
		existing.DisplayName == identity.DisplayName &&
		existing.PhotoURL == identity.PhotoURL {
		return existing, nil
	}

	profile := &model.User{
		ID:          identity.ID,
		Role:        identity.Role,
		DisplayName: identity.DisplayName,
		PhotoURL:    identity.PhotoURL,
	}
	if err := s.userRepo.Upsert(ctx, profile); err != nil {
		return nil, err
	}

	if existing == nil {
		s.logger.Info("New user registered",
			zap.String("user_id", identity.ID),
			zap.String("role", string(identity.Role)),
		)
	} else {
		s.logger.Info("User updated", zap.String("user_id", identity.ID))
	}

	return s.userRepo.GetByID(ctx, identity.ID)
}

// EnsureProfile возвращает сохранённый профиль, создавая его из данных
// личности при первом входе. Роль всегда берётся из личности.
func (s *UserService) EnsureProfile(ctx context.Context, identity *model.User) (*model.User, error) {
	existing, err := s.userRepo.GetByID(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if existing == nil {
		return s.SyncProfile(ctx, identity)
	}
	if existing.Role != identity.Role {
		existing.Role = identity.Role
		return s.SyncProfile(ctx, existing)
	}

	return existing, nil
}

// ============ Привязка Telegram ============

// generateLinkCode генерирует уникальный код привязки
func (s *UserService) generateLinkCode(ctx context.Context) (string, error) {
	const maxAttempts = 10

	for i := 0; i < maxAttempts; i++ {
		bytes := make([]byte, 10)
		if _, err := rand.Read(bytes); err != nil {
			return "", fmt.Errorf("generate random bytes: %w", err)
		}

		// base32 без padding годится для deep link Telegram
		code := strings.TrimRight(base32.StdEncoding.EncodeToString(bytes), "=")

		existing, err := s.linkRepo.GetByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code exists: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxAttempts)
}

// IssueTelegramLinkCode выдаёт одноразовый код для команды /start <код>
func (s *UserService) IssueTelegramLinkCode(ctx context.Context, userID string) (*model.TelegramLinkCode, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	code, err := s.generateLinkCode(ctx)
	if err != nil {
		return nil, err
	}

	link := &model.TelegramLinkCode{
		Code:      code,
		UserID:    userID,
		ExpiresAt: s.now().Add(TelegramLinkTTL),
	}
	if err := s.linkRepo.Create(ctx, link); err != nil {
		return nil, err
	}

	s.logger.Info("Telegram link code issued", zap.String("user_id", userID))
	return link, nil
}

// LinkTelegram привязывает Telegram-аккаунт, написавший боту, к владельцу
// кода. Код одноразовый. Если аккаунт был привязан к другому профилю,
// прежняя привязка снимается.
func (s *UserService) LinkTelegram(ctx context.Context, code string, telegramID int64) (*model.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || telegramID == 0 {
		return nil, ErrLinkCodeInvalid
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	link, err := s.linkRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkCodeInvalid
	}
	if err := s.linkRepo.Delete(ctx, code); err != nil {
		return nil, err
	}
	if !link.IsValid(s.now()) {
		return nil, ErrLinkCodeInvalid
	}

	user, err := s.userRepo.GetByID(ctx, link.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	previous, err := s.userRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if previous != nil && previous.ID != user.ID {
		if err := s.userRepo.SetTelegramID(ctx, previous.ID, 0); err != nil {
			return nil, err
		}
		s.logger.Info("Telegram unlinked from previous user",
			zap.String("user_id", previous.ID),
			zap.Int64("telegram_id", telegramID),
		)
	}

	if err := s.userRepo.SetTelegramID(ctx, user.ID, telegramID); err != nil {
		return nil, err
	}

	s.logger.Info("Telegram linked",
		zap.String("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
	)

	return s.userRepo.GetByID(ctx, user.ID)
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
