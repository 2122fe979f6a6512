package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service/ports"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// LifecycleStats - результат одного прохода AdvanceLifecycle
type LifecycleStats struct {
	Started           int64
	Completed         int64
	BookingsCompleted int64
}

// SlotService управляет расписанием преподавателя: слоты, шаблоны, отмена
type SlotService struct {
	store      ports.Store
	notifier   ports.BookingNotifier
	location   *time.Location
	weeksAhead int
	logger     *zap.Logger
	now        func() time.Time
}

func NewSlotService(
	store ports.Store,
	notifier ports.BookingNotifier,
	location *time.Location,
	weeksAhead int,
	logger *zap.Logger,
) *SlotService {
	if location == nil {
		location = time.UTC
	}
	return &SlotService{
		store:      store,
		notifier:   notifier,
		location:   location,
		weeksAhead: weeksAhead,
		logger:     logger,
		now:        time.Now,
	}
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return model.Forbidden(model.MsgAdminOnly)
	}
	return nil
}

func validateCapacity(slotType model.SlotType, maxParticipants int) error {
	switch slotType {
	case model.SlotTypeIndividual:
		if maxParticipants != 1 {
			return model.Validation("individual slot must have exactly one participant")
		}
	case model.SlotTypeGroup:
		if maxParticipants < 2 {
			return model.Validation("group slot must allow at least two participants")
		}
	default:
		return model.Validationf("unknown slot type %q", slotType)
	}
	return nil
}

// CreateSlot создаёт одиночный слот. Пересечение с другим слотом преподавателя отклоняется.
func (s *SlotService) CreateSlot(ctx context.Context, actor model.Actor, input model.CreateSlotInput) (*model.Slot, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	// Валидация времени
	if !input.EndTime.After(input.StartTime) {
		return nil, model.Validation("end time must be after start time")
	}
	if !input.StartTime.After(s.now()) {
		return nil, model.Validation("cannot create slot in the past")
	}

	if input.Type == model.SlotTypeIndividual && input.MaxParticipants == 0 {
		input.MaxParticipants = 1
	}
	if err := validateCapacity(input.Type, input.MaxParticipants); err != nil {
		return nil, err
	}

	overlap, err := s.store.Slots().HasOverlap(ctx, actor.UserID, input.StartTime, input.EndTime)
	if err != nil {
		return nil, fmt.Errorf("check slot overlap: %w", err)
	}
	if overlap {
		return nil, model.Conflict(model.MsgSlotOverlaps)
	}

	slot := &model.Slot{
		ProfessorID:       actor.UserID,
		Title:             strings.TrimSpace(input.Title),
		Description:       strings.TrimSpace(input.Description),
		StartTime:         input.StartTime,
		EndTime:           input.EndTime,
		Type:              input.Type,
		MaxParticipants:   input.MaxParticipants,
		Status:            model.SlotStatusAvailable,
		IsPrivate:         input.IsPrivate,
		AllowedStudentIDs: input.AllowedStudentIDs,
	}

	if err := s.insertSlot(ctx, slot); err != nil {
		return nil, err
	}

	s.logger.Info("Slot created",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("professor_id", actor.UserID),
		zap.Time("start_time", slot.StartTime),
		zap.String("type", string(slot.Type)),
	)

	return slot, nil
}

func (s *SlotService) insertSlot(ctx context.Context, slot *model.Slot) error {
	return s.store.WithinTx(ctx, func(tx ports.Store) error {
		return tx.Slots().Create(ctx, slot)
	})
}

func validateRecurring(pattern *model.RecurringSchedule) error {
	if len(pattern.Weekdays) == 0 {
		return model.Validation("at least one weekday is required")
	}
	for _, w := range pattern.Weekdays {
		if w < 0 || w > 6 {
			return model.Validationf("invalid weekday %d", w)
		}
	}
	if pattern.StartHour < 0 || pattern.StartHour > 23 || pattern.StartMinute < 0 || pattern.StartMinute > 59 {
		return model.Validation("invalid start time")
	}
	if pattern.EndHour < 0 || pattern.EndHour > 24 || pattern.EndMinute < 0 || pattern.EndMinute > 59 {
		return model.Validation("invalid end time")
	}
	if pattern.EndOffset() > 24*time.Hour {
		return model.Validation("invalid end time")
	}
	if pattern.DurationMinutes <= 0 {
		return model.Validation("duration must be positive")
	}
	if pattern.StartOffset()+pattern.Duration() > pattern.EndOffset() {
		return model.Validation("time range is shorter than slot duration")
	}
	if pattern.ValidUntil != nil && pattern.ValidUntil.Before(pattern.ValidFrom) {
		return model.Validation("valid_until must not be before valid_from")
	}
	return validateCapacity(pattern.SlotType, pattern.MaxParticipants)
}

// CreateRecurring сохраняет шаблон и сразу генерирует по нему слоты.
// Прошедшие и пересекающиеся с существующими слоты пропускаются.
func (s *SlotService) CreateRecurring(ctx context.Context, actor model.Actor, pattern *model.RecurringSchedule) ([]*model.Slot, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	if pattern.SlotType == model.SlotTypeIndividual && pattern.MaxParticipants == 0 {
		pattern.MaxParticipants = 1
	}
	if pattern.ValidFrom.IsZero() {
		pattern.ValidFrom = s.now().In(s.location)
	}
	if err := validateRecurring(pattern); err != nil {
		return nil, err
	}

	pattern.GroupID = uuid.New()
	pattern.ProfessorID = actor.UserID
	pattern.IsActive = true

	if err := s.store.Recurring().Create(ctx, pattern); err != nil {
		return nil, fmt.Errorf("create recurring schedule: %w", err)
	}

	slots, err := s.generateForSchedule(ctx, pattern)
	if err != nil {
		return slots, err
	}

	s.logger.Info("Recurring schedule created",
		zap.Int64("recurring_schedule_id", pattern.ID),
		zap.String("group_id", pattern.GroupID.String()),
		zap.Int64("professor_id", actor.UserID),
		zap.Int("slots_created", len(slots)),
	)

	return slots, nil
}

// generateForSchedule создаёт слоты шаблона на weeksAhead недель вперёд
func (s *SlotService) generateForSchedule(ctx context.Context, schedule *model.RecurringSchedule) ([]*model.Slot, error) {
	now := s.now().In(s.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)

	from := schedule.ValidFrom.In(s.location)
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.location)
	if from.Before(today) {
		from = today
	}

	until := today.AddDate(0, 0, s.weeksAhead*7)
	if schedule.ValidUntil != nil {
		last := schedule.ValidUntil.In(s.location)
		last = time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, s.location).AddDate(0, 0, 1)
		if last.Before(until) {
			until = last
		}
	}

	var created []*model.Slot
	for day := from; day.Before(until); day = day.AddDate(0, 0, 1) {
		if !schedule.HasWeekday(day.Weekday()) {
			continue
		}

		windowEnd := time.Date(day.Year(), day.Month(), day.Day(), schedule.EndHour, schedule.EndMinute, 0, 0, s.location)
		start := time.Date(day.Year(), day.Month(), day.Day(), schedule.StartHour, schedule.StartMinute, 0, 0, s.location)

		for ; !start.Add(schedule.Duration()).After(windowEnd); start = start.Add(schedule.Duration()) {
			end := start.Add(schedule.Duration())

			// Пропускаем прошедшие слоты
			if !start.After(now) {
				continue
			}

			overlap, err := s.store.Slots().HasOverlap(ctx, schedule.ProfessorID, start, end)
			if err != nil {
				return created, fmt.Errorf("check slot overlap: %w", err)
			}
			if overlap {
				s.logger.Debug("Slot overlaps existing one, skipping",
					zap.Int64("recurring_schedule_id", schedule.ID),
					zap.Time("start_time", start),
				)
				continue
			}

			scheduleID := schedule.ID
			slot := &model.Slot{
				ProfessorID:         schedule.ProfessorID,
				Title:               schedule.Title,
				StartTime:           start,
				EndTime:             end,
				Type:                schedule.SlotType,
				MaxParticipants:     schedule.MaxParticipants,
				Status:              model.SlotStatusAvailable,
				IsPrivate:           schedule.IsPrivate,
				AllowedStudentIDs:   append([]int64(nil), schedule.AllowedStudentIDs...),
				RecurringScheduleID: &scheduleID,
			}

			if err := s.insertSlot(ctx, slot); err != nil {
				// слот мог появиться между проверкой и вставкой
				if model.IsConflict(err) {
					continue
				}
				return created, fmt.Errorf("create slot: %w", err)
			}
			created = append(created, slot)
		}
	}

	return created, nil
}

// GenerateForAllRecurring догенерирует слоты всех активных шаблонов.
// Вызывается планировщиком раз в день.
func (s *SlotService) GenerateForAllRecurring(ctx context.Context) (int, error) {
	schedules, err := s.store.Recurring().GetAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("get all active recurring schedules: %w", err)
	}

	totalCount := 0
	for _, schedule := range schedules {
		slots, err := s.generateForSchedule(ctx, schedule)
		totalCount += len(slots)
		if err != nil {
			s.logger.Error("Failed to generate slots for recurring schedule",
				zap.Error(err),
				zap.Int64("recurring_schedule_id", schedule.ID),
			)
			continue
		}
	}

	s.logger.Info("Generated slots for all recurring schedules",
		zap.Int("total_schedules", len(schedules)),
		zap.Int("total_slots_created", totalCount),
	)

	return totalCount, nil
}

// ListRecurring возвращает шаблоны преподавателя
func (s *SlotService) ListRecurring(ctx context.Context, actor model.Actor) ([]*model.RecurringSchedule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.Recurring().GetByProfessorID(ctx, actor.UserID)
}

// DeactivateRecurring останавливает генерацию по шаблону, созданные слоты остаются
func (s *SlotService) DeactivateRecurring(ctx context.Context, actor model.Actor, scheduleID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	schedule, err := s.store.Recurring().GetByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("get recurring schedule: %w", err)
	}
	if schedule == nil || schedule.ProfessorID != actor.UserID {
		return model.NotFound(model.MsgScheduleNotFound)
	}

	if err := s.store.Recurring().Deactivate(ctx, scheduleID); err != nil {
		return err
	}

	s.logger.Info("Recurring schedule deactivated",
		zap.Int64("recurring_schedule_id", scheduleID),
		zap.Int64("professor_id", actor.UserID),
	)

	return nil
}

// CancelSlot отменяет слот вместе со всеми активными бронированиями
func (s *SlotService) CancelSlot(ctx context.Context, slotID int64, actor model.Actor, reason string) (*model.Slot, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason = strings.TrimSpace(reason); reason != "" {
		reasonPtr = &reason
	}

	var (
		cancelledSlot *model.Slot
		cancelled     []*model.Booking
	)

	err := retry.Do(ctx, newVersionBackoff(), func(ctx context.Context) error {
		slot, err := s.store.Slots().GetByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return model.NotFound(model.MsgSlotNotFound)
		}
		if slot.Status.IsTerminal() {
			return model.InvalidState(model.MsgSlotClosed)
		}

		now := s.now()
		err = s.store.WithinTx(ctx, func(tx ports.Store) error {
			bookings, err := tx.Bookings().CancelAllForSlot(ctx, slot.ID, reasonPtr, now)
			if err != nil {
				return err
			}

			affected, err := tx.Slots().ConditionalUpdate(ctx, slot.ID, slot.Version, model.SlotPatch{
				CurrentParticipants: 0,
				Status:              model.SlotStatusCancelled,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				return errVersionConflict
			}

			cancelled = bookings
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}

		cancelledSlot = slot.Clone()
		cancelledSlot.Status = model.SlotStatusCancelled
		cancelledSlot.CurrentParticipants = 0
		cancelledSlot.Version = slot.Version + 1
		return nil
	})
	if err != nil {
		if errors.Is(err, errVersionConflict) {
			return nil, model.TooManyAttempts()
		}
		return nil, err
	}

	s.logger.Info("Slot cancelled",
		zap.Int64("slot_id", slotID),
		zap.Int64("professor_id", actor.UserID),
		zap.Int("bookings_cancelled", len(cancelled)),
	)

	notifyCtx := context.WithoutCancel(ctx)
	for _, booking := range cancelled {
		s.notifier.NotifyBookingCancelled(notifyCtx, cancelledSlot.Clone(), booking, reason, model.RoleAdmin)
	}

	return cancelledSlot, nil
}

// SetAllowList меняет приватность слота и список допущенных студентов.
// Уже подтверждённые бронирования не затрагиваются.
func (s *SlotService) SetAllowList(ctx context.Context, slotID int64, actor model.Actor, isPrivate bool, studentIDs []int64) (*model.Slot, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	slot, err := s.store.Slots().GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, model.NotFound(model.MsgSlotNotFound)
	}
	if slot.Status.IsTerminal() {
		return nil, model.InvalidState(model.MsgSlotClosed)
	}

	var updated *model.Slot
	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		if err := tx.Slots().SetAllowList(ctx, slotID, isPrivate, studentIDs); err != nil {
			return err
		}
		var err error
		updated, err = tx.Slots().GetByID(ctx, slotID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set allow list: %w", err)
	}

	s.logger.Info("Slot allow list updated",
		zap.Int64("slot_id", slotID),
		zap.Bool("is_private", isPrivate),
		zap.Int("students", len(studentIDs)),
	)

	return updated, nil
}

// GetSlot возвращает слот, если он виден пользователю
func (s *SlotService) GetSlot(ctx context.Context, slotID int64, actor model.Actor) (*model.Slot, error) {
	slot, err := s.store.Slots().GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, model.NotFound(model.MsgSlotNotFound)
	}
	if !actor.IsAdmin() && !slot.IsAllowed(actor.UserID) {
		return nil, model.Forbidden(model.MsgSlotPrivate)
	}
	return slot, nil
}

// ListSlots возвращает слоты по фильтру; приватные чужие слоты скрываются от студентов
func (s *SlotService) ListSlots(ctx context.Context, filter model.SlotFilter, actor model.Actor) ([]*model.Slot, error) {
	slots, err := s.store.Slots().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if actor.IsAdmin() {
		return slots, nil
	}

	visible := slots[:0]
	for _, slot := range slots {
		if slot.IsAllowed(actor.UserID) {
			visible = append(visible, slot)
		}
	}
	return visible, nil
}

// AdvanceLifecycle переводит начавшиеся слоты в IN_PROGRESS, закончившиеся в COMPLETED
// и завершает их бронирования. Каждый переход увеличивает версию слота.
func (s *SlotService) AdvanceLifecycle(ctx context.Context) (LifecycleStats, error) {
	now := s.now()

	var stats LifecycleStats
	err := s.store.WithinTx(ctx, func(tx ports.Store) error {
		var err error
		if stats.Completed, err = tx.Slots().MarkCompleted(ctx, now); err != nil {
			return err
		}
		if stats.Started, err = tx.Slots().MarkStarted(ctx, now); err != nil {
			return err
		}
		if stats.BookingsCompleted, err = tx.Bookings().CompleteForFinishedSlots(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return LifecycleStats{}, fmt.Errorf("advance slot lifecycle: %w", err)
	}

	if stats.Started > 0 || stats.Completed > 0 {
		s.logger.Info("Slot lifecycle advanced",
			zap.Int64("started", stats.Started),
			zap.Int64("completed", stats.Completed),
			zap.Int64("bookings_completed", stats.BookingsCompleted),
		)
	}

	return stats, nil
}
