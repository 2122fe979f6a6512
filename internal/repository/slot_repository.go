package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const slotColumns = `
	s.id, s.professor_id, s.title, s.description, s.start_time, s.end_time, s.slot_type,
	s.max_participants, s.current_participants, s.status, s.version, s.is_private,
	ARRAY(SELECT a.student_id FROM slot_allowed_students a WHERE a.slot_id = s.id ORDER BY a.student_id),
	s.recurring_schedule_id, s.meeting_room, s.created_at, s.updated_at`

type SlotRepository struct {
	base.Repository
}

func NewSlotRepository(db base.DBTX) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(db)}
}

func scanSlot(row pgx.Row) (*model.Slot, error) {
	var slot model.Slot
	err := row.Scan(
		&slot.ID,
		&slot.ProfessorID,
		&slot.Title,
		&slot.Description,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Type,
		&slot.MaxParticipants,
		&slot.CurrentParticipants,
		&slot.Status,
		&slot.Version,
		&slot.IsPrivate,
		&slot.AllowedStudentIDs,
		&slot.RecurringScheduleID,
		&slot.MeetingRoom,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create создаёт новый слот вместе с allow-list.
// Пересечение с другим слотом преподавателя возвращает Conflict.
func (r *SlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (professor_id, title, description, start_time, end_time, slot_type,
			max_participants, current_participants, status, is_private, recurring_schedule_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, version, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		slot.ProfessorID,
		slot.Title,
		slot.Description,
		slot.StartTime,
		slot.EndTime,
		slot.Type,
		slot.MaxParticipants,
		slot.CurrentParticipants,
		slot.Status,
		slot.IsPrivate,
		slot.RecurringScheduleID,
	).Scan(&slot.ID, &slot.Version, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		if base.IsExclusionViolation(err) {
			return &model.Error{Kind: model.KindConflict, Message: model.MsgSlotOverlaps, Err: err}
		}
		return fmt.Errorf("create slot: %w", err)
	}

	if err := r.insertAllowList(ctx, slot.ID, slot.AllowedStudentIDs); err != nil {
		return err
	}

	return nil
}

// GetByID получает слот с версией и allow-list
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots s WHERE s.id = $1`

	slot, err := scanSlot(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// List получает слоты по фильтру, отсортированные по времени начала
func (r *SlotRepository) List(ctx context.Context, filter model.SlotFilter) ([]*model.Slot, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProfessorID != nil {
		args = append(args, *filter.ProfessorID)
		conds = append(conds, fmt.Sprintf("s.professor_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("s.start_time >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("s.start_time < $%d", len(args)))
	}
	if filter.OnlyAvailable {
		conds = append(conds, "s.status = 'AVAILABLE'")
	}

	query := `SELECT ` + slotColumns + ` FROM slots s`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY s.start_time, s.id`

	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	return slots, nil
}

// HasOverlap проверяет пересечение [start, end) с неотменёнными слотами преподавателя
func (r *SlotRepository) HasOverlap(ctx context.Context, professorID int64, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM slots
			WHERE professor_id = $1
			  AND status <> 'CANCELLED'
			  AND start_time < $3
			  AND end_time > $2
		)
	`

	var exists bool
	if err := r.QueryRow(ctx, query, professorID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slot overlap: %w", err)
	}

	return exists, nil
}

// ConditionalUpdate применяет patch, только если версия не изменилась с момента чтения
func (r *SlotRepository) ConditionalUpdate(ctx context.Context, id, expectedVersion int64, patch model.SlotPatch) (int64, error) {
	query := `
		UPDATE slots
		SET current_participants = $3,
		    status = $4,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
	`

	affected, err := r.ExecAffected(ctx, query, id, expectedVersion, patch.CurrentParticipants, patch.Status)
	if err != nil {
		return 0, fmt.Errorf("conditional update slot: %w", err)
	}

	return affected, nil
}

// ReleaseSeat освобождает одно место. Статус пересчитывается только у открытого слота.
func (r *SlotRepository) ReleaseSeat(ctx context.Context, id int64) error {
	query := `
		UPDATE slots
		SET current_participants = GREATEST(current_participants - 1, 0),
		    status = CASE
		        WHEN status IN ('AVAILABLE', 'FULLY_BOOKED') THEN
		            CASE WHEN GREATEST(current_participants - 1, 0) >= max_participants
		                 THEN 'FULLY_BOOKED' ELSE 'AVAILABLE' END
		        ELSE status
		    END,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, id)
	if err != nil {
		return fmt.Errorf("release slot seat: %w", err)
	}
	if affected == 0 {
		return model.NotFound(model.MsgSlotNotFound)
	}

	return nil
}

// AssignMeetingRoom записывает комнату, если её ещё нет, и возвращает сохранённое значение
func (r *SlotRepository) AssignMeetingRoom(ctx context.Context, id int64, room string) (string, error) {
	query := `
		UPDATE slots
		SET meeting_room = COALESCE(meeting_room, $2),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING meeting_room
	`

	var stored string
	if err := r.QueryRow(ctx, query, id, room).Scan(&stored); err != nil {
		if base.IsNotFound(err) {
			return "", model.NotFound(model.MsgSlotNotFound)
		}
		return "", fmt.Errorf("assign meeting room: %w", err)
	}

	return stored, nil
}

// SetAllowList заменяет allow-list слота. Вызывается внутри транзакции.
func (r *SlotRepository) SetAllowList(ctx context.Context, id int64, isPrivate bool, studentIDs []int64) error {
	affected, err := r.ExecAffected(ctx,
		`UPDATE slots SET is_private = $2, updated_at = NOW() WHERE id = $1`,
		id, isPrivate,
	)
	if err != nil {
		return fmt.Errorf("update slot privacy: %w", err)
	}
	if affected == 0 {
		return model.NotFound(model.MsgSlotNotFound)
	}

	if _, err := r.ExecAffected(ctx, `DELETE FROM slot_allowed_students WHERE slot_id = $1`, id); err != nil {
		return fmt.Errorf("clear allow list: %w", err)
	}

	return r.insertAllowList(ctx, id, studentIDs)
}

func (r *SlotRepository) insertAllowList(ctx context.Context, slotID int64, studentIDs []int64) error {
	if len(studentIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO slot_allowed_students (slot_id, student_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`

	if _, err := r.ExecAffected(ctx, query, slotID, studentIDs); err != nil {
		return fmt.Errorf("insert allow list: %w", err)
	}

	return nil
}

// MarkStarted переводит начавшиеся открытые слоты в IN_PROGRESS
func (r *SlotRepository) MarkStarted(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE slots
		SET status = 'IN_PROGRESS', version = version + 1, updated_at = NOW()
		WHERE status IN ('AVAILABLE', 'FULLY_BOOKED')
		  AND start_time <= $1
		  AND end_time > $1
	`

	affected, err := r.ExecAffected(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("mark slots started: %w", err)
	}

	return affected, nil
}

// MarkCompleted завершает закончившиеся слоты
func (r *SlotRepository) MarkCompleted(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE slots
		SET status = 'COMPLETED', version = version + 1, updated_at = NOW()
		WHERE status IN ('AVAILABLE', 'FULLY_BOOKED', 'IN_PROGRESS')
		  AND end_time <= $1
	`

	affected, err := r.ExecAffected(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("mark slots completed: %w", err)
	}

	return affected, nil
}
