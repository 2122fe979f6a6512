package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service/ports"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	// MaxReserveAttempts - сколько раз Reserve перечитывает слот после конфликта версий
	MaxReserveAttempts = 3
	// CancellationWindow - минимальный срок до начала, в который студент может отменить запись
	CancellationWindow = 24 * time.Hour

	// RoomProvisionTimeout ограничивает вызов провайдера комнат внутри транзакции бронирования
	RoomProvisionTimeout = 3 * time.Second

	reserveRetryDelay  = 15 * time.Millisecond
	reserveRetryJitter = 10 * time.Millisecond
)

// errVersionConflict - слот изменился между чтением и условным обновлением
var errVersionConflict = errors.New("slot version changed")

// ReserveResult - результат успешного бронирования
type ReserveResult struct {
	Booking  *model.Booking
	Slot     *model.Slot
	Attempts int
}

type BookingService struct {
	store    ports.Store
	rooms    ports.RoomProvider
	notifier ports.BookingNotifier
	logger   *zap.Logger
	now      func() time.Time

	roomTimeout time.Duration
}

func NewBookingService(
	store ports.Store,
	rooms ports.RoomProvider,
	notifier ports.BookingNotifier,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		store:    store,
		rooms:    rooms,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,

		roomTimeout: RoomProvisionTimeout,
	}
}

func newVersionBackoff() retry.Backoff {
	b := retry.NewConstant(reserveRetryDelay)
	b = retry.WithJitter(reserveRetryJitter, b)
	return retry.WithMaxRetries(MaxReserveAttempts-1, b)
}

// Reserve бронирует место в слоте для студента.
// Каждая попытка заново читает слот; проигравшая гонку попытка повторяется,
// после MaxReserveAttempts возвращается Conflict.
func (s *BookingService) Reserve(ctx context.Context, slotID, studentID int64) (*ReserveResult, error) {
	var (
		result   *ReserveResult
		attempts int
	)

	err := retry.Do(ctx, newVersionBackoff(), func(ctx context.Context) error {
		attempts++

		res, err := s.tryReserve(ctx, slotID, studentID)
		if errors.Is(err, errVersionConflict) {
			s.logger.Debug("Slot version changed, retrying reservation",
				zap.Int64("slot_id", slotID),
				zap.Int64("student_id", studentID),
				zap.Int("attempt", attempts),
			)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, errVersionConflict) {
			s.logger.Warn("Reservation retries exhausted",
				zap.Int64("slot_id", slotID),
				zap.Int64("student_id", studentID),
				zap.Int("attempts", attempts),
			)
			return nil, model.TooManyAttempts()
		}
		return nil, err
	}

	result.Attempts = attempts

	s.logger.Info("Slot booked",
		zap.Int64("booking_id", result.Booking.ID),
		zap.Int64("student_id", studentID),
		zap.Int64("slot_id", slotID),
		zap.Int("participants", result.Slot.CurrentParticipants),
		zap.String("slot_status", string(result.Slot.Status)),
		zap.Int("attempts", attempts),
	)

	s.notifier.NotifyBookingConfirmed(context.WithoutCancel(ctx), result.Slot.Clone(), result.Booking.Clone())

	return result, nil
}

func (s *BookingService) tryReserve(ctx context.Context, slotID, studentID int64) (*ReserveResult, error) {
	slot, err := s.store.Slots().GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}

	if err := s.checkReservable(slot, studentID); err != nil {
		return nil, err
	}

	existing, err := s.store.Bookings().FindConfirmed(ctx, slotID, studentID)
	if err != nil {
		return nil, fmt.Errorf("find confirmed booking: %w", err)
	}
	if existing != nil {
		return nil, model.Conflict(model.MsgAlreadyBooked)
	}

	booking := &model.Booking{
		SlotID:    slotID,
		StudentID: studentID,
		Status:    model.BookingStatusConfirmed,
	}
	updated := slot.Clone()

	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}

		participants := slot.CurrentParticipants + 1
		status := model.DeriveStatus(slot.Status, participants, slot.MaxParticipants)

		affected, err := tx.Slots().ConditionalUpdate(ctx, slot.ID, slot.Version, model.SlotPatch{
			CurrentParticipants: participants,
			Status:              status,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return errVersionConflict
		}

		updated.CurrentParticipants = participants
		updated.Status = status
		updated.Version = slot.Version + 1

		if updated.MeetingRoom == nil {
			return s.provisionRoom(ctx, tx, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ReserveResult{Booking: booking, Slot: updated}, nil
}

func (s *BookingService) checkReservable(slot *model.Slot, studentID int64) error {
	if slot == nil {
		return model.NotFound(model.MsgSlotNotFound)
	}
	if !slot.IsAllowed(studentID) {
		return model.Forbidden(model.MsgSlotPrivate)
	}
	if slot.Status != model.SlotStatusAvailable {
		return model.InvalidState(model.MsgSlotUnavailable)
	}
	if !slot.HasCapacity() {
		return model.InvalidState(model.MsgSlotFullyBooked)
	}
	if !slot.StartTime.After(s.now()) {
		return model.InvalidState(model.MsgPastSlot)
	}
	return nil
}

// provisionRoom создаёт комнату и сохраняет её, если у слота ещё нет комнаты.
// Сбой провайдера не отменяет бронирование: комната будет создана при первом входе.
func (s *BookingService) provisionRoom(ctx context.Context, store ports.Store, slot *model.Slot) error {
	if s.rooms == nil {
		return nil
	}

	// строка слота уже заблокирована условным обновлением
	roomCtx, cancel := context.WithTimeout(ctx, s.roomTimeout)
	defer cancel()

	room, err := s.rooms.CreateRoom(roomCtx, slot)
	if err != nil {
		s.logger.Warn("Failed to provision meeting room",
			zap.Int64("slot_id", slot.ID),
			zap.Error(err),
		)
		return nil
	}

	stored, err := store.Slots().AssignMeetingRoom(ctx, slot.ID, room)
	if err != nil {
		return fmt.Errorf("assign meeting room: %w", err)
	}
	slot.MeetingRoom = &stored

	return nil
}

// Cancel отменяет бронирование от имени студента или администратора
func (s *BookingService) Cancel(ctx context.Context, bookingID int64, actor model.Actor, reason string) (*model.Booking, error) {
	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, model.NotFound(model.MsgBookingNotFound)
	}
	if booking.Status != model.BookingStatusConfirmed {
		return nil, model.InvalidState(model.MsgBookingNotCancelable)
	}
	if !actor.IsAdmin() && booking.StudentID != actor.UserID {
		return nil, model.Forbidden(model.MsgCancelNotAllowed)
	}

	slot, err := s.store.Slots().GetByID(ctx, booking.SlotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, model.NotFound(model.MsgSlotNotFound)
	}

	now := s.now()
	if !actor.IsAdmin() && slot.StartTime.Sub(now) < CancellationWindow {
		return nil, model.InvalidState(model.MsgCancellationWindow)
	}

	status := model.BookingStatusCancelledByStudent
	if actor.IsAdmin() {
		status = model.BookingStatusCancelledByProfessor
	}

	var reasonPtr *string
	if reason = strings.TrimSpace(reason); reason != "" {
		reasonPtr = &reason
	}

	var updatedSlot *model.Slot
	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		affected, err := tx.Bookings().Cancel(ctx, booking.ID, status, reasonPtr, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return model.InvalidState(model.MsgBookingNotCancelable)
		}

		if err := tx.Slots().ReleaseSeat(ctx, slot.ID); err != nil {
			return err
		}

		updatedSlot, err = tx.Slots().GetByID(ctx, slot.ID)
		if err != nil {
			return fmt.Errorf("reload slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updatedSlot == nil {
		updatedSlot = slot
	}

	booking.Status = status
	booking.CancelledAt = &now
	booking.CancellationReason = reasonPtr

	s.logger.Info("Booking cancelled",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("slot_id", slot.ID),
		zap.Int64("actor_id", actor.UserID),
		zap.String("status", string(status)),
		zap.Int("participants", updatedSlot.CurrentParticipants),
		zap.String("slot_status", string(updatedSlot.Status)),
	)

	s.notifier.NotifyBookingCancelled(context.WithoutCancel(ctx), updatedSlot.Clone(), booking.Clone(), reason, actor.Role)

	return booking, nil
}

// GetBooking возвращает бронирование его владельцу или администратору
func (s *BookingService) GetBooking(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error) {
	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, model.NotFound(model.MsgBookingNotFound)
	}
	if !actor.IsAdmin() && booking.StudentID != actor.UserID {
		return nil, model.Forbidden(model.MsgBookingForbidden)
	}
	return booking, nil
}

// ListStudentBookings получает бронирования студента
func (s *BookingService) ListStudentBookings(ctx context.Context, studentID int64) ([]*model.Booking, error) {
	bookings, err := s.store.Bookings().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student bookings: %w", err)
	}
	return bookings, nil
}

// ListSlotBookings получает все бронирования слота
func (s *BookingService) ListSlotBookings(ctx context.Context, slotID int64) ([]*model.Booking, error) {
	slot, err := s.store.Slots().GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, model.NotFound(model.MsgSlotNotFound)
	}

	bookings, err := s.store.Bookings().ListBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("list slot bookings: %w", err)
	}
	return bookings, nil
}

// JoinLink возвращает ссылку на комнату занятия участнику или администратору.
// Если комната не была создана при бронировании, она создаётся здесь.
func (s *BookingService) JoinLink(ctx context.Context, slotID int64, actor model.Actor) (string, error) {
	slot, err := s.store.Slots().GetByID(ctx, slotID)
	if err != nil {
		return "", fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return "", model.NotFound(model.MsgSlotNotFound)
	}
	if slot.Status == model.SlotStatusCancelled {
		return "", model.InvalidState(model.MsgSlotUnavailable)
	}

	if !actor.IsAdmin() {
		booking, err := s.store.Bookings().FindConfirmed(ctx, slotID, actor.UserID)
		if err != nil {
			return "", fmt.Errorf("find confirmed booking: %w", err)
		}
		if booking == nil {
			return "", model.Forbidden(model.MsgNotParticipant)
		}
	}

	if s.rooms == nil {
		return "", fmt.Errorf("meeting rooms are not configured")
	}

	room := slot.MeetingRoomName()
	if room == "" {
		created, err := s.rooms.CreateRoom(ctx, slot)
		if err != nil {
			return "", fmt.Errorf("create meeting room: %w", err)
		}
		room, err = s.store.Slots().AssignMeetingRoom(ctx, slot.ID, created)
		if err != nil {
			return "", fmt.Errorf("assign meeting room: %w", err)
		}
	}

	displayName := ""
	user, err := s.store.Users().GetByID(ctx, actor.UserID)
	if err != nil {
		s.logger.Warn("Failed to load user for join link", zap.Int64("user_id", actor.UserID), zap.Error(err))
	} else if user != nil {
		displayName = user.FullName
	}

	return s.rooms.JoinURL(room, displayName)
}
