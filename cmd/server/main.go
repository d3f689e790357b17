package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/app"
	"github.com/Freeeeeet/tutor_chat/internal/config"
	"github.com/Freeeeeet/tutor_chat/internal/controller/httpapi"
	"github.com/Freeeeeet/tutor_chat/internal/controller/telegram"
	"github.com/Freeeeeet/tutor_chat/internal/notify"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/service"
	"github.com/Freeeeeet/tutor_chat/internal/store"
	"github.com/Freeeeeet/tutor_chat/internal/store/memory"
	"github.com/Freeeeeet/tutor_chat/internal/store/postgres"
	"github.com/Freeeeeet/tutor_chat/internal/store/redisfeed"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting tutor chat",
		zap.String("store", cfg.StoreDriver),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("telegram", cfg.TelegramToken != ""),
		zap.Bool("redis_feed", cfg.RedisURL != ""),
	)

	docs, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Репозитории
	userRepo := repository.NewUserRepository(docs)
	relRepo := repository.NewRelationshipRepository(docs)
	membershipRepo := repository.NewMembershipRepository(docs)
	convRepo := repository.NewConversationRepository(docs)
	msgRepo := repository.NewMessageRepository(docs)
	notificationRepo := repository.NewNotificationRepository(docs)

	// Каналы уведомлений
	notifiers := notify.Multi{notify.NewStoreNotifier(notificationRepo, logger)}

	var tgBot *bot.Bot
	if cfg.TelegramToken != "" {
		tgBot, err = telegram.NewBot(cfg.TelegramToken, logger)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, telegram.NewNotifier(tgBot, userRepo, relRepo, logger))
	}

	// Сервисы
	users := service.NewUserService(userRepo, repository.NewTelegramLinkRepository(docs), logger)
	membership := service.NewMembershipService(membershipRepo, relRepo, userRepo, logger)
	relationships := service.NewRelationshipService(relRepo, userRepo, membership, notifiers, logger)
	gate := service.NewGateService(relRepo, userRepo, logger)
	conversations := service.NewConversationService(convRepo, userRepo, gate, logger)
	messages := service.NewMessageService(msgRepo, convRepo, logger)
	chat := service.NewChatService(conversations, messages, gate, logger)

	scheduler := app.NewScheduler(relationships, cfg.ReconcileInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if tgBot != nil {
		controller := telegram.NewController(tgBot, users, relationships, logger)
		go func() {
			_ = telegram.Run(ctx, tgBot, controller, logger)
		}()
	}

	api := httpapi.NewServer(httpapi.Deps{
		Auth:          httpapi.NewAuthenticator(cfg.JWTSecret),
		Users:         users,
		Relationships: relationships,
		Membership:    membership,
		Gate:          gate,
		Conversations: conversations,
		Messages:      messages,
		Chat:          chat,
		Notifications: notificationRepo,
		AllowedOrigin: cfg.CORSOrigin,
	}, logger)

	httpServer := api.HTTPServer(cfg.HTTPAddr)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	return nil
}

// openStore открывает хранилище документов выбранного драйвера
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	var feed store.ChangeFeed
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.RedisURL != "" {
		rf, err := redisfeed.New(cfg.RedisURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := rf.Ping(ctx); err != nil {
			_ = rf.Close()
			return nil, nil, err
		}
		feed = rf
		closers = append(closers, func() { _ = rf.Close() })
	}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		opts := []memory.Option{memory.WithLogger(logger)}
		if feed != nil {
			opts = append(opts, memory.WithFeed(feed))
		}
		return memory.New(opts...), closeAll, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DBDSN)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)

		if cfg.MigrationsEnabled {
			migrator, err := app.NewMigrator(pool, logger)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			err = migrator.Run(ctx)
			_ = migrator.Close()
			if err != nil {
				closeAll()
				return nil, nil, err
			}
		}

		return postgres.New(pool, feed, logger), closeAll, nil
	}

	closeAll()
	return nil, nil, errors.New("unknown store driver " + cfg.StoreDriver)
}
