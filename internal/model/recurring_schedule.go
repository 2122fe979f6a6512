package model

import (
	"time"

	"github.com/google/uuid"
)

// RecurringSchedule представляет шаблон регулярного расписания преподавателя
type RecurringSchedule struct {
	ID                int64      `json:"id"`
	GroupID           uuid.UUID  `json:"group_id"` // общий идентификатор слотов, созданных по шаблону
	ProfessorID       int64      `json:"professor_id"`
	Title             string     `json:"title"`
	Weekdays          []int      `json:"weekdays"`     // 0 = Sunday, 6 = Saturday
	StartHour         int        `json:"start_hour"`   // 0-23
	StartMinute       int        `json:"start_minute"` // 0-59
	EndHour           int        `json:"end_hour"`
	EndMinute         int        `json:"end_minute"`
	DurationMinutes   int        `json:"duration_minutes"` // длительность одного слота
	SlotType          SlotType   `json:"slot_type"`
	MaxParticipants   int        `json:"max_participants"`
	IsPrivate         bool       `json:"is_private"`
	AllowedStudentIDs []int64    `json:"allowed_student_ids,omitempty"`
	ValidFrom         time.Time  `json:"valid_from"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"` // nil - без даты окончания
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasWeekday проверяет, попадает ли день недели в шаблон
func (r *RecurringSchedule) HasWeekday(day time.Weekday) bool {
	for _, w := range r.Weekdays {
		if time.Weekday(w) == day {
			return true
		}
	}
	return false
}

// StartOffset и EndOffset - смещения от полуночи
func (r *RecurringSchedule) StartOffset() time.Duration {
	return time.Duration(r.StartHour)*time.Hour + time.Duration(r.StartMinute)*time.Minute
}

func (r *RecurringSchedule) EndOffset() time.Duration {
	return time.Duration(r.EndHour)*time.Hour + time.Duration(r.EndMinute)*time.Minute
}

// Duration возвращает длительность одного слота
func (r *RecurringSchedule) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}
