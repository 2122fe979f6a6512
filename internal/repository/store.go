package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/Freeeeeet/tutor_booking/internal/service/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// txBeginner - пул или уже открытая транзакция (вложенный Begin создаёт savepoint)
type txBeginner interface {
	base.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store собирает репозитории над одним соединением: пулом или транзакцией
type Store struct {
	db        txBeginner
	logger    *zap.Logger
	slots     *SlotRepository
	bookings  *BookingRepository
	users     *UserRepository
	recurring *RecurringScheduleRepository
}

// NewStore создаёт хранилище поверх пула соединений
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return newStore(pool, logger)
}

func newStore(db txBeginner, logger *zap.Logger) *Store {
	return &Store{
		db:        db,
		logger:    logger,
		slots:     NewSlotRepository(db),
		bookings:  NewBookingRepository(db),
		users:     NewUserRepository(db),
		recurring: NewRecurringScheduleRepository(db),
	}
}

func (s *Store) Slots() ports.SlotRepo                  { return s.slots }
func (s *Store) Bookings() ports.BookingRepo            { return s.bookings }
func (s *Store) Users() ports.UserRepo                  { return s.users }
func (s *Store) Recurring() ports.RecurringScheduleRepo { return s.recurring }

// WithinTx выполняет fn в транзакции. Ошибка fn откатывает все изменения.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ports.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(newStore(tx, s.logger)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
