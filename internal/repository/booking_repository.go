package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, slot_id, student_id, status, notes, booked_at, cancelled_at, cancellation_reason, updated_at`

type BookingRepository struct {
	base.Repository
}

func NewBookingRepository(db base.DBTX) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(db)}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var booking model.Booking
	err := row.Scan(
		&booking.ID,
		&booking.SlotID,
		&booking.StudentID,
		&booking.Status,
		&booking.Notes,
		&booking.BookedAt,
		&booking.CancelledAt,
		&booking.CancellationReason,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func collectBookings(rows pgx.Rows) ([]*model.Booking, error) {
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// Create создаёт новое бронирование.
// Второе CONFIRMED бронирование того же студента на слот отклоняется уникальным индексом.
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (slot_id, student_id, status, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, booked_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		booking.SlotID,
		booking.StudentID,
		booking.Status,
		booking.Notes,
	).Scan(&booking.ID, &booking.BookedAt, &booking.UpdatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return &model.Error{Kind: model.KindConflict, Message: model.MsgAlreadyBooked, Err: err}
		}
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// FindConfirmed получает активное бронирование студента на слот
func (r *BookingRepository) FindConfirmed(ctx context.Context, slotID, studentID int64) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE slot_id = $1 AND student_id = $2 AND status = 'CONFIRMED'
	`

	booking, err := scanBooking(r.QueryRow(ctx, query, slotID, studentID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find confirmed booking: %w", err)
	}

	return booking, nil
}

// ListBySlot получает все бронирования слота
func (r *BookingRepository) ListBySlot(ctx context.Context, slotID int64) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE slot_id = $1 ORDER BY booked_at, id`

	rows, err := r.Query(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("get bookings by slot: %w", err)
	}

	return collectBookings(rows)
}

// ListByStudent получает все бронирования студента, новые первыми
func (r *BookingRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE student_id = $1 ORDER BY booked_at DESC, id DESC`

	rows, err := r.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("get bookings by student: %w", err)
	}

	return collectBookings(rows)
}

// Cancel отменяет бронирование, если оно всё ещё CONFIRMED
func (r *BookingRepository) Cancel(ctx context.Context, id int64, status model.BookingStatus, reason *string, at time.Time) (int64, error) {
	query := `
		UPDATE bookings
		SET status = $2, cancelled_at = $3, cancellation_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'CONFIRMED'
	`

	affected, err := r.ExecAffected(ctx, query, id, status, at, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel booking: %w", err)
	}

	return affected, nil
}

// CancelAllForSlot отменяет от имени преподавателя все активные бронирования слота
func (r *BookingRepository) CancelAllForSlot(ctx context.Context, slotID int64, reason *string, at time.Time) ([]*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'CANCELLED_BY_PROFESSOR', cancelled_at = $2, cancellation_reason = $3, updated_at = NOW()
		WHERE slot_id = $1 AND status = 'CONFIRMED'
		RETURNING ` + bookingColumns

	rows, err := r.Query(ctx, query, slotID, at, reason)
	if err != nil {
		return nil, fmt.Errorf("cancel slot bookings: %w", err)
	}

	return collectBookings(rows)
}

// CompleteForFinishedSlots завершает активные бронирования завершённых слотов
func (r *BookingRepository) CompleteForFinishedSlots(ctx context.Context) (int64, error) {
	query := `
		UPDATE bookings b
		SET status = 'COMPLETED', updated_at = NOW()
		FROM slots s
		WHERE b.slot_id = s.id
		  AND s.status = 'COMPLETED'
		  AND b.status = 'CONFIRMED'
	`

	affected, err := r.ExecAffected(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("complete bookings: %w", err)
	}

	return affected, nil
}
