package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/service"
	"go.uber.org/zap"
)

// SlotMaintainer - фоновые операции над слотами
type SlotMaintainer interface {
	GenerateForAllRecurring(ctx context.Context) (int, error)
	AdvanceLifecycle(ctx context.Context) (service.LifecycleStats, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	slots         SlotMaintainer
	generateEvery time.Duration
	sweepEvery    time.Duration
	logger        *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(slots SlotMaintainer, generateEvery, sweepEvery time.Duration, logger *zap.Logger) *Scheduler {
	if generateEvery <= 0 {
		generateEvery = 24 * time.Hour
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Scheduler{
		slots:         slots,
		generateEvery: generateEvery,
		sweepEvery:    sweepEvery,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start запускает фоновые задачи. Первый запуск каждой задачи сразу при старте.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("generate_every", s.generateEvery),
		zap.Duration("sweep_every", s.sweepEvery),
	)

	s.wg.Add(2)
	go s.runPeriodic(ctx, "slot generation", s.generateEvery, s.generateSlots)
	go s.runPeriodic(ctx, "lifecycle sweep", s.sweepEvery, s.sweepLifecycle)
}

// Stop останавливает задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) runPeriodic(ctx context.Context, name string, every time.Duration, task func(context.Context)) {
	defer s.wg.Done()

	task(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task(ctx)
		case <-s.stopChan:
			s.logger.Info("Background task stopped", zap.String("task", name))
			return
		case <-ctx.Done():
			s.logger.Info("Background task cancelled", zap.String("task", name))
			return
		}
	}
}

func (s *Scheduler) generateSlots(ctx context.Context) {
	created, err := s.slots.GenerateForAllRecurring(ctx)
	if err != nil {
		s.logger.Error("Failed to generate slots", zap.Error(err))
		return
	}
	s.logger.Info("Automatic slot generation completed", zap.Int("slots_created", created))
}

func (s *Scheduler) sweepLifecycle(ctx context.Context) {
	stats, err := s.slots.AdvanceLifecycle(ctx)
	if err != nil {
		s.logger.Error("Failed to advance slot lifecycle", zap.Error(err))
		return
	}
	if stats.Started+stats.Completed+stats.BookingsCompleted > 0 {
		s.logger.Info("Slot lifecycle advanced",
			zap.Int64("started", stats.Started),
			zap.Int64("completed", stats.Completed),
			zap.Int64("bookings_completed", stats.BookingsCompleted),
		)
	}
}
