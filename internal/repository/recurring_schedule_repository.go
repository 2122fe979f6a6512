package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const recurringColumns = `
	id, group_id, professor_id, title, weekdays, start_hour, start_minute, end_hour, end_minute,
	duration_minutes, slot_type, max_participants, is_private, allowed_student_ids,
	valid_from, valid_until, is_active, created_at, updated_at`

// RecurringScheduleRepository управляет recurring расписаниями в базе данных
type RecurringScheduleRepository struct {
	base.Repository
}

// NewRecurringScheduleRepository создаёт новый репозиторий
func NewRecurringScheduleRepository(db base.DBTX) *RecurringScheduleRepository {
	return &RecurringScheduleRepository{Repository: base.NewRepository(db)}
}

func scanRecurring(row pgx.Row) (*model.RecurringSchedule, error) {
	schedule := &model.RecurringSchedule{}
	err := row.Scan(
		&schedule.ID,
		&schedule.GroupID,
		&schedule.ProfessorID,
		&schedule.Title,
		&schedule.Weekdays,
		&schedule.StartHour,
		&schedule.StartMinute,
		&schedule.EndHour,
		&schedule.EndMinute,
		&schedule.DurationMinutes,
		&schedule.SlotType,
		&schedule.MaxParticipants,
		&schedule.IsPrivate,
		&schedule.AllowedStudentIDs,
		&schedule.ValidFrom,
		&schedule.ValidUntil,
		&schedule.IsActive,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

func (r *RecurringScheduleRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.RecurringSchedule, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var schedules []*model.RecurringSchedule
	for rows.Next() {
		schedule, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return schedules, nil
}

// Create создаёт новый recurring schedule
func (r *RecurringScheduleRepository) Create(ctx context.Context, schedule *model.RecurringSchedule) error {
	query := `
		INSERT INTO recurring_schedules (group_id, professor_id, title, weekdays, start_hour, start_minute,
			end_hour, end_minute, duration_minutes, slot_type, max_participants, is_private,
			allowed_student_ids, valid_from, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`

	allowed := schedule.AllowedStudentIDs
	if allowed == nil {
		allowed = []int64{}
	}

	err := r.QueryRow(
		ctx,
		query,
		schedule.GroupID,
		schedule.ProfessorID,
		schedule.Title,
		schedule.Weekdays,
		schedule.StartHour,
		schedule.StartMinute,
		schedule.EndHour,
		schedule.EndMinute,
		schedule.DurationMinutes,
		schedule.SlotType,
		schedule.MaxParticipants,
		schedule.IsPrivate,
		allowed,
		schedule.ValidFrom,
		schedule.ValidUntil,
		schedule.IsActive,
	).Scan(&schedule.ID, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create recurring schedule: %w", err)
	}

	return nil
}

// GetByID получает recurring schedule по ID
func (r *RecurringScheduleRepository) GetByID(ctx context.Context, id int64) (*model.RecurringSchedule, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_schedules WHERE id = $1`

	schedule, err := scanRecurring(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recurring schedule: %w", err)
	}

	return schedule, nil
}

// GetByProfessorID получает все шаблоны преподавателя
func (r *RecurringScheduleRepository) GetByProfessorID(ctx context.Context, professorID int64) ([]*model.RecurringSchedule, error) {
	query := `
		SELECT ` + recurringColumns + `
		FROM recurring_schedules
		WHERE professor_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, "get recurring schedules by professor", query, professorID)
}

// GetAllActive получает все активные шаблоны для генерации слотов
func (r *RecurringScheduleRepository) GetAllActive(ctx context.Context) ([]*model.RecurringSchedule, error) {
	query := `
		SELECT ` + recurringColumns + `
		FROM recurring_schedules
		WHERE is_active = true
		ORDER BY professor_id, id
	`
	return r.list(ctx, "get active recurring schedules", query)
}

// Deactivate деактивирует шаблон, созданные слоты остаются
func (r *RecurringScheduleRepository) Deactivate(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx,
		`UPDATE recurring_schedules SET is_active = false, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivate recurring schedule: %w", err)
	}
	if affected == 0 {
		return model.NotFound(model.MsgScheduleNotFound)
	}

	return nil
}
