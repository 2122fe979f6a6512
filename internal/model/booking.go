package model

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed            BookingStatus = "CONFIRMED"
	BookingStatusCancelledByStudent   BookingStatus = "CANCELLED_BY_STUDENT"
	BookingStatusCancelledByProfessor BookingStatus = "CANCELLED_BY_PROFESSOR"
	BookingStatusCompleted            BookingStatus = "COMPLETED"
	BookingStatusNoShow               BookingStatus = "NO_SHOW"
)

type Booking struct {
	ID                 int64         `json:"id"`
	SlotID             int64         `json:"slot_id"`
	StudentID          int64         `json:"student_id"`
	Status             BookingStatus `json:"status"`
	Notes              string        `json:"notes,omitempty"`
	BookedAt           time.Time     `json:"booked_at"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Clone возвращает независимую копию бронирования
func (b *Booking) Clone() *Booking {
	c := *b
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		c.CancelledAt = &at
	}
	if b.CancellationReason != nil {
		reason := *b.CancellationReason
		c.CancellationReason = &reason
	}
	return &c
}
