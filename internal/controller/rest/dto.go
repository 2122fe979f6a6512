package rest

import (
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

const dateLayout = "2006-01-02"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type ReserveRequest struct {
	SlotID int64 `json:"slot_id" binding:"required,gt=0"`
}

type ReserveResponse struct {
	BookingID int64          `json:"booking_id"`
	Booking   *model.Booking `json:"booking"`
	Slot      *model.Slot    `json:"slot"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type JoinResponse struct {
	URL string `json:"url"`
}

type CreateSlotRequest struct {
	Title             string         `json:"title" binding:"required"`
	Description       string         `json:"description"`
	StartTime         time.Time      `json:"start_time" binding:"required"`
	EndTime           time.Time      `json:"end_time" binding:"required"`
	Type              model.SlotType `json:"type" binding:"required"`
	MaxParticipants   int            `json:"max_participants"`
	IsPrivate         bool           `json:"is_private"`
	AllowedStudentIDs []int64        `json:"allowed_student_ids"`
}

func (r CreateSlotRequest) toInput() model.CreateSlotInput {
	return model.CreateSlotInput{
		Title:             r.Title,
		Description:       r.Description,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		Type:              r.Type,
		MaxParticipants:   r.MaxParticipants,
		IsPrivate:         r.IsPrivate,
		AllowedStudentIDs: r.AllowedStudentIDs,
	}
}

// CreateRecurringRequest - шаблон повторяющихся слотов, время в часовом поясе сервиса
type CreateRecurringRequest struct {
	Title             string         `json:"title" binding:"required"`
	Weekdays          []int          `json:"weekdays" binding:"required,min=1"`
	StartTime         string         `json:"start_time" binding:"required"` // "15:04"
	EndTime           string         `json:"end_time" binding:"required"`
	DurationMinutes   int            `json:"duration_minutes" binding:"required,gt=0"`
	SlotType          model.SlotType `json:"slot_type" binding:"required"`
	MaxParticipants   int            `json:"max_participants"`
	IsPrivate         bool           `json:"is_private"`
	AllowedStudentIDs []int64        `json:"allowed_student_ids"`
	ValidFrom         string         `json:"valid_from"` // "2006-01-02"
	ValidUntil        string         `json:"valid_until"`
}

func (r CreateRecurringRequest) toSchedule(location *time.Location) (*model.RecurringSchedule, error) {
	start, err := time.Parse("15:04", r.StartTime)
	if err != nil {
		return nil, model.Validation("invalid start_time format, expected HH:MM")
	}
	end, err := time.Parse("15:04", r.EndTime)
	if err != nil {
		return nil, model.Validation("invalid end_time format, expected HH:MM")
	}

	schedule := &model.RecurringSchedule{
		Title:             r.Title,
		Weekdays:          r.Weekdays,
		StartHour:         start.Hour(),
		StartMinute:       start.Minute(),
		EndHour:           end.Hour(),
		EndMinute:         end.Minute(),
		DurationMinutes:   r.DurationMinutes,
		SlotType:          r.SlotType,
		MaxParticipants:   r.MaxParticipants,
		IsPrivate:         r.IsPrivate,
		AllowedStudentIDs: r.AllowedStudentIDs,
	}

	if r.ValidFrom != "" {
		from, err := time.ParseInLocation(dateLayout, r.ValidFrom, location)
		if err != nil {
			return nil, model.Validation("invalid valid_from format, expected YYYY-MM-DD")
		}
		schedule.ValidFrom = from
	}
	if r.ValidUntil != "" {
		until, err := time.ParseInLocation(dateLayout, r.ValidUntil, location)
		if err != nil {
			return nil, model.Validation("invalid valid_until format, expected YYYY-MM-DD")
		}
		schedule.ValidUntil = &until
	}

	return schedule, nil
}

type CreateRecurringResponse struct {
	Schedule *model.RecurringSchedule `json:"schedule"`
	Slots    []*model.Slot            `json:"slots"`
}

type AllowListRequest struct {
	IsPrivate  bool    `json:"is_private"`
	StudentIDs []int64 `json:"student_ids"`
}
