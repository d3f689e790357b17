package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Controller обрабатывает команды и нажатия кнопок бота
type Controller struct {
	api           API
	users         *service.UserService
	relationships *service.RelationshipService
	logger        *zap.Logger
}

func NewController(api API, users *service.UserService, relationships *service.RelationshipService, logger *zap.Logger) *Controller {
	return &Controller{
		api:           api,
		users:         users,
		relationships: relationships,
		logger:        logger,
	}
}

// RegisterHandlers регистрирует обработчики на боте и ставит меню команд
func (c *Controller) RegisterHandlers(ctx context.Context, b *bot.Bot) error {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.HandleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/requests", bot.MatchTypeExact, c.HandleRequests)

	// Обработчик нажатий на inline кнопки
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.HandleCallbackQuery)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *Controller) setCommands(ctx context.Context) error {
	_, err := c.api.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "start", Description: "🚀 Начать работу с ботом"},
			{Command: "requests", Description: "📨 Входящие заявки"},
		},
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// HandleStart обрабатывает команду /start. С кодом из приложения
// (/start <код>) привязывает Telegram-аккаунт, который прислал команду.
func (c *Controller) HandleStart(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	if code := startPayload(update.Message.Text); code != "" {
		c.handleLink(ctx, chatID, telegramID, code)
		return
	}

	user, err := c.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		c.logger.Error("Failed to get user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		c.send(ctx, chatID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}

	if user == nil {
		c.send(ctx, chatID,
			"👋 Привет!\n\n"+
				"Чтобы получать уведомления о заявках, получите код привязки в профиле приложения "+
				"и отправьте его сюда: /start <код>",
		)
		return
	}

	c.send(ctx, chatID, fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Уведомления о заявках будут приходить сюда.\n"+
			"/requests - Входящие заявки",
		user.DisplayName,
	))
}

func (c *Controller) handleLink(ctx context.Context, chatID, telegramID int64, code string) {
	user, err := c.users.LinkTelegram(ctx, code, telegramID)
	if err != nil {
		if !errors.Is(err, service.ErrLinkCodeInvalid) && !errors.Is(err, service.ErrUserNotFound) {
			c.logger.Error("Failed to link telegram", zap.Int64("telegram_id", telegramID), zap.Error(err))
		}
		c.send(ctx, chatID, ErrorMessage(err))
		return
	}

	c.send(ctx, chatID, fmt.Sprintf(
		"✅ Аккаунт привязан к профилю %s.\n\n"+
			"Уведомления о заявках будут приходить сюда.\n"+
			"/requests - Входящие заявки",
		user.DisplayName,
	))
}

// startPayload возвращает параметр команды /start
func startPayload(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// HandleRequests показывает входящие заявки с кнопками ответа
func (c *Controller) HandleRequests(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := c.users.GetByTelegramID(ctx, update.Message.From.ID)
	if err != nil || user == nil {
		c.send(ctx, chatID, ErrorMessage(service.ErrUserNotFound))
		return
	}

	requests, err := c.relationships.IncomingRequests(ctx, user.ID)
	if err != nil {
		c.logger.Error("Failed to get incoming requests", zap.String("user_id", user.ID), zap.Error(err))
		c.send(ctx, chatID, ErrorMessage(err))
		return
	}

	if len(requests) == 0 {
		c.send(ctx, chatID, "📭 Нет входящих заявок")
		return
	}

	c.send(ctx, chatID, requestsHeader(len(requests)))

	for _, rel := range requests {
		counterpartID := rel.Pair().Other(user.ID)
		name := counterpartID
		if counterpart, _ := c.users.GetByID(ctx, counterpartID); counterpart != nil && counterpart.DisplayName != "" {
			name = counterpart.DisplayName
		}

		_, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        fmt.Sprintf("📨 Заявка от %s\n📅 %s", name, formatDateTime(rel.CreatedAt)),
			ReplyMarkup: requestKeyboard(counterpartID),
		})
		if err != nil {
			c.logger.Error("Failed to send request", zap.String("relationship_id", rel.ID), zap.Error(err))
		}
	}
}

// HandleCallbackQuery обрабатывает кнопки ответа на заявку. Отвечать может
// только получатель заявки, найденный по Telegram ID нажавшего.
func (c *Controller) HandleCallbackQuery(ctx context.Context, _ *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	var approve bool
	var counterpartID string
	switch {
	case strings.HasPrefix(callback.Data, ApproveRequest):
		approve = true
		counterpartID = strings.TrimPrefix(callback.Data, ApproveRequest)
	case strings.HasPrefix(callback.Data, DenyRequest):
		counterpartID = strings.TrimPrefix(callback.Data, DenyRequest)
	default:
		c.logger.Warn("Unknown callback", zap.String("data", callback.Data))
		c.answer(ctx, callback.ID, "❓ Неизвестная команда", false)
		return
	}
	if counterpartID == "" {
		c.answer(ctx, callback.ID, "❌ Неверный формат", true)
		return
	}

	user, err := c.users.GetByTelegramID(ctx, callback.From.ID)
	if err != nil || user == nil {
		c.answer(ctx, callback.ID, ErrorMessage(service.ErrUserNotFound), true)
		return
	}

	rel, err := c.pendingFrom(ctx, user.ID, counterpartID)
	if err == nil {
		if approve {
			_, err = c.relationships.Approve(ctx, user.ID, rel.ID)
		} else {
			_, err = c.relationships.Deny(ctx, user.ID, rel.ID)
		}
	}
	if err != nil {
		c.logger.Error("Failed to answer request",
			zap.Int64("telegram_id", callback.From.ID),
			zap.String("counterpart_id", counterpartID),
			zap.Bool("approve", approve),
			zap.Error(err),
		)
		c.answer(ctx, callback.ID, ErrorMessage(err), true)
		return
	}

	text := "✅ Заявка принята"
	if !approve {
		text = "❌ Заявка отклонена"
	}
	c.answer(ctx, callback.ID, text, false)

	// Обновляем сообщение
	if msg := callback.Message.Message; msg != nil {
		_, err := c.api.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      text,
		})
		if err != nil {
			c.logger.Warn("Failed to edit message", zap.Error(err))
		}
	}
}

// pendingFrom находит ожидающую заявку от counterpartID к userID
func (c *Controller) pendingFrom(ctx context.Context, userID, counterpartID string) (*model.Relationship, error) {
	requests, err := c.relationships.IncomingRequests(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, rel := range requests {
		if rel.Pair().Other(userID) == counterpartID {
			return rel, nil
		}
	}

	return nil, service.ErrRequestNotPending
}

func (c *Controller) send(ctx context.Context, chatID int64, text string) {
	_, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		c.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func (c *Controller) answer(ctx context.Context, callbackID, text string, alert bool) {
	_, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		c.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}
