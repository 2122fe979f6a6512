package ports

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// Store объединяет репозитории и позволяет выполнить их в одной транзакции.
// Внутри WithinTx все операции tx откатываются, если fn вернула ошибку.
type Store interface {
	Slots() SlotRepo
	Bookings() BookingRepo
	Users() UserRepo
	Recurring() RecurringScheduleRepo
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type SlotRepo interface {
	Create(ctx context.Context, slot *model.Slot) error
	// GetByID читает слот вместе с версией и allow-list; nil, nil если слота нет
	GetByID(ctx context.Context, id int64) (*model.Slot, error)
	List(ctx context.Context, filter model.SlotFilter) ([]*model.Slot, error)
	HasOverlap(ctx context.Context, professorID int64, start, end time.Time) (bool, error)
	// ConditionalUpdate применяет patch только при совпадении версии и увеличивает её на 1.
	// Возвращает число затронутых строк.
	ConditionalUpdate(ctx context.Context, id, expectedVersion int64, patch model.SlotPatch) (int64, error)
	// ReleaseSeat уменьшает число участников (не ниже 0), пересчитывает статус и версию
	ReleaseSeat(ctx context.Context, id int64) error
	// AssignMeetingRoom сохраняет комнату, только если она ещё не назначена, и возвращает сохранённую
	AssignMeetingRoom(ctx context.Context, id int64, room string) (string, error)
	SetAllowList(ctx context.Context, id int64, isPrivate bool, studentIDs []int64) error
	MarkStarted(ctx context.Context, now time.Time) (int64, error)
	MarkCompleted(ctx context.Context, now time.Time) (int64, error)
}

type BookingRepo interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	FindConfirmed(ctx context.Context, slotID, studentID int64) (*model.Booking, error)
	ListBySlot(ctx context.Context, slotID int64) ([]*model.Booking, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*model.Booking, error)
	// Cancel переводит CONFIRMED бронирование в статус отмены; 0 строк - бронирование уже не активно
	Cancel(ctx context.Context, id int64, status model.BookingStatus, reason *string, at time.Time) (int64, error)
	CancelAllForSlot(ctx context.Context, slotID int64, reason *string, at time.Time) ([]*model.Booking, error)
	CompleteForFinishedSlots(ctx context.Context) (int64, error)
}

type UserRepo interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type RecurringScheduleRepo interface {
	Create(ctx context.Context, schedule *model.RecurringSchedule) error
	GetByID(ctx context.Context, id int64) (*model.RecurringSchedule, error)
	GetByProfessorID(ctx context.Context, professorID int64) ([]*model.RecurringSchedule, error)
	GetAllActive(ctx context.Context) ([]*model.RecurringSchedule, error)
	Deactivate(ctx context.Context, id int64) error
}
