package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/store"
	"go.uber.org/zap"
)

// GateService отвечает на вопрос "можно ли этой паре переписываться":
// пара активна, пока у неё нет записей в статусах blocked или denied.
type GateService struct {
	relRepo  *repository.RelationshipRepository
	userRepo *repository.UserRepository
	logger   *zap.Logger
}

func NewGateService(relRepo *repository.RelationshipRepository, userRepo *repository.UserRepository, logger *zap.Logger) *GateService {
	return &GateService{
		relRepo:  relRepo,
		userRepo: userRepo,
		logger:   logger,
	}
}

// Check разово проверяет пару. Ошибки хранилища возвращаются как есть.
func (g *GateService) Check(ctx context.Context, aID, bID string) (bool, error) {
	pair, _, _, err := resolvePair(ctx, g.userRepo, aID, bID)
	if err != nil {
		return false, err
	}

	closing, err := g.relRepo.FindByPairAndStatuses(ctx, pair, model.GateClosingStatuses)
	if err != nil {
		return false, fmt.Errorf("check gate: %w", err)
	}

	return len(closing) == 0, nil
}

// NewWatcher создаёт живой сигнал для одного потребителя
func (g *GateService) NewWatcher() *GateWatcher {
	return &GateWatcher{
		gate:    g,
		active:  true,
		updates: make(chan bool, 1),
	}
}

// GateWatcher держит не больше одной подписки. Смена пары отменяет прежнюю
// подписку до запуска новой, а ответы старой подписки отбрасываются по
// номеру поколения.
type GateWatcher struct {
	gate *GateService

	mu      sync.Mutex
	sub     store.Subscription
	gen     uint64
	pair    model.Pair
	active  bool
	updates chan bool
}

// Watch переключает сигнал на пару (aID, bID). Прежняя подписка
// отменяется сразу, даже если новая пара не прошла проверку. Начальное
// значение берётся разовой проверкой пары до подписки.
func (w *GateWatcher) Watch(ctx context.Context, aID, bID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.resetLocked()
	w.pair = model.Pair{}

	pair, _, _, err := resolvePair(ctx, w.gate.userRepo, aID, bID)
	if err != nil {
		return err
	}
	w.pair = pair
	gen := w.gen

	active := true
	closing, err := w.gate.relRepo.FindByPairAndStatuses(ctx, pair, model.GateClosingStatuses)
	if err != nil {
		// при ошибке начальной проверки сигнал открыт, как и при ошибке подписки
		w.gate.logger.Warn("Initial gate check failed, failing open",
			zap.String("student_id", pair.StudentID),
			zap.String("instructor_id", pair.InstructorID),
			zap.Error(err),
		)
	} else {
		active = len(closing) == 0
	}
	w.setLocked(active)

	sub, err := w.gate.relRepo.WatchPairStatuses(ctx, pair, model.GateClosingStatuses, func(rels []*model.Relationship, err error) {
		w.apply(gen, rels, err)
	})
	if err != nil {
		w.resetLocked()
		w.pair = model.Pair{}
		return fmt.Errorf("watch gate: %w", err)
	}
	w.sub = sub

	return nil
}

func (w *GateWatcher) apply(gen uint64, rels []*model.Relationship, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		return
	}

	active := len(rels) == 0
	if err != nil {
		// при ошибке подписки сигнал открыт
		w.gate.logger.Warn("Gate subscription failed, failing open",
			zap.String("student_id", w.pair.StudentID),
			zap.String("instructor_id", w.pair.InstructorID),
			zap.Error(err),
		)
		active = true
	}

	if active != w.active {
		w.gate.logger.Info("Gate changed",
			zap.String("student_id", w.pair.StudentID),
			zap.String("instructor_id", w.pair.InstructorID),
			zap.Bool("active", active),
		)
	}
	w.setLocked(active)
}

// Active возвращает текущее значение сигнала
func (w *GateWatcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.active
}

// Updates отдаёт последнее значение сигнала после каждого снимка;
// промежуточные значения могут схлопываться.
func (w *GateWatcher) Updates() <-chan bool {
	return w.updates
}

// Stop отменяет подписку и возвращает сигнал в true
func (w *GateWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.resetLocked()
	w.pair = model.Pair{}
}

func (w *GateWatcher) resetLocked() {
	if w.sub != nil {
		w.sub.Cancel()
		w.sub = nil
	}
	w.gen++
	w.setLocked(true)
}

func (w *GateWatcher) setLocked(active bool) {
	w.active = active
	select {
	case <-w.updates:
	default:
	}
	w.updates <- active
}
