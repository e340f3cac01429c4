package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ronaldocpontes/contribute/internal/repository"
)

// Sweeper - периодическая сверка: заново опрашивает контрибуции
// в переходных статусах и продвигает их через те же переходы state machine.
// Чинит состояние после краха или потерянного callback-а.
type Sweeper struct {
	logger    *zap.Logger
	repo      repository.ContributionRepository
	svc       *ContributionService
	interval  time.Duration
	batchSize int
	workers   int
}

// NewSweeper создаёт новый sweeper
func NewSweeper(
	logger *zap.Logger,
	repo repository.ContributionRepository,
	svc *ContributionService,
	interval time.Duration, //interval - период между проходами (масштаб - часы)
	batchSize int, //batchSize - сколько контрибуций берём за один проход
	workers int, //workers - размер пула воркеров внутри прохода
) *Sweeper {
	return &Sweeper{
		logger:    logger,
		repo:      repo,
		svc:       svc,
		interval:  interval,
		batchSize: batchSize,
		workers:   workers,
	}
}

// sweepStatuses - переходные статусы, которые сверка забирает в работу
var sweepStatuses = []repository.ContributionStatus{
	repository.StatusPending,
	repository.StatusRetryPay,
	repository.StatusRetryCancel,
}

// Start запускает sweeper в фоновом режиме
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("starting reconciliation sweeper",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
		zap.Int("workers", s.workers),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Первый проход сразу при старте
	if err := s.processBatch(ctx); err != nil {
		s.logger.Error("failed to process initial sweep batch", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled, stopping")
			return nil
		case <-ticker.C:
			if err := s.processBatch(ctx); err != nil {
				s.logger.Error("failed to process sweep batch", zap.Error(err))
			}
		}
	}
}

// processBatch забирает батч переходных контрибуций и обрабатывает его
// пулом воркеров. Ошибка одной контрибуции не прерывает обработку остальных.
func (s *Sweeper) processBatch(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	contributions, err := s.repo.ListByStatuses(ctx, sweepStatuses, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to list transient contributions: %w", err)
	}

	if len(contributions) == 0 {
		return nil
	}

	s.logger.Debug("processing sweep batch",
		zap.Int("count", len(contributions)),
	)

	// Пул воркеров: контрибуции независимы и обрабатываются параллельно,
	// но не больше workers одновременно
	jobs := make(chan repository.Contribution)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				if err := s.processOne(ctx, c); err != nil {
					s.logger.Error("failed to reconcile contribution",
						zap.Error(err),
						zap.String("contribution_id", c.ID),
						zap.String("status", string(c.Status)),
					)
					// Продолжаем обработку следующих контрибуций
				}
			}
		}()
	}

	for _, c := range contributions {
		if ctx.Err() != nil {
			break
		}
		jobs <- c
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

// processOne продвигает одну контрибуцию в зависимости от её статуса
func (s *Sweeper) processOne(ctx context.Context, c repository.Contribution) error {
	switch c.Status {
	case repository.StatusRetryPay:
		// Повтор платежа через обычный переход
		_, err := s.svc.ExecutePayment(ctx, c.ID)
		return err

	case repository.StatusRetryCancel:
		// Повтор отмены через обычный переход
		_, err := s.svc.Cancel(ctx, c.ID)
		return err

	case repository.StatusPending:
		// Read-only запрос статуса, результат применяем отдельным шагом
		checked, err := s.svc.CheckStatus(ctx, c.ID)
		if err != nil {
			return err
		}
		if checked == repository.StatusPending {
			return nil
		}
		_, err = s.svc.ApplyCheckedStatus(ctx, c.ID, checked)
		return err

	default:
		// Контрибуция успела уйти в терминальный статус между выборкой
		// и обработкой - делать нечего
		return nil
	}
}
