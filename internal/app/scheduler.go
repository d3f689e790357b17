package app

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/service"
	"go.uber.org/zap"
)

// Reconciler восстанавливает индекс одобренных контрагентов
type Reconciler interface {
	ReconcileMembership(ctx context.Context) (service.ReconcileReport, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	done       chan struct{}
}

// NewScheduler создаёт планировщик. interval 0 отключает сверку.
func NewScheduler(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Membership reconcile disabled")
		close(s.done)
		return
	}

	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))
	go s.runReconcileTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
	<-s.done
}

func (s *Scheduler) runReconcileTask(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.reconcile(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx)
		case <-s.stopChan:
			s.logger.Info("Reconcile task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Reconcile task cancelled")
			return
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	report, err := s.reconciler.ReconcileMembership(ctx)
	if err != nil {
		s.logger.Error("Failed to reconcile membership", zap.Error(err))
		return
	}

	s.logger.Info("Membership reconciled",
		zap.Int("users_checked", report.UsersChecked),
		zap.Int("users_fixed", report.UsersFixed),
	)
}
