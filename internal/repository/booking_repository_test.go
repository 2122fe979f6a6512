package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewBookingRepository(mock)

	now := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(sql("INSERT INTO bookings (slot_id, student_id, status, notes)")).
		WithArgs(int64(7), int64(1), model.BookingStatusConfirmed, "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "booked_at", "updated_at"}).AddRow(int64(5), now, now))

	booking := &model.Booking{SlotID: 7, StudentID: 1, Status: model.BookingStatusConfirmed}
	require.NoError(t, repo.Create(context.Background(), booking))

	assert.Equal(t, int64(5), booking.ID)
	assert.Equal(t, now, booking.BookedAt)
}

func TestBookingRepository_Create_DuplicateIsAlreadyBooked(t *testing.T) {
	mock := newMockPool(t)
	repo := NewBookingRepository(mock)

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_bookings_confirmed"}
	mock.ExpectQuery(sql("INSERT INTO bookings")).
		WithArgs(int64(7), int64(1), model.BookingStatusConfirmed, "").
		WillReturnError(pgErr)

	err := repo.Create(context.Background(), &model.Booking{SlotID: 7, StudentID: 1, Status: model.BookingStatusConfirmed})

	require.Error(t, err)
	assert.True(t, model.IsConflict(err))
	assert.Equal(t, model.MsgAlreadyBooked, model.MessageOf(err))
	assert.ErrorIs(t, err, pgErr)
}

func TestBookingRepository_Create_OtherErrorIsInfrastructure(t *testing.T) {
	mock := newMockPool(t)
	repo := NewBookingRepository(mock)

	mock.ExpectQuery(sql("INSERT INTO bookings")).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "bookings_slot_id_fkey"})

	err := repo.Create(context.Background(), &model.Booking{SlotID: 7, StudentID: 1, Status: model.BookingStatusConfirmed})

	require.Error(t, err)
	assert.Empty(t, model.KindOf(err))
}

func TestBookingRepository_Cancel_OnlyConfirmed(t *testing.T) {
	mock := newMockPool(t)
	repo := NewBookingRepository(mock)

	at := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	reason := "sick"
	mock.ExpectExec(sql("SET status = $2, cancelled_at = $3, cancellation_reason = $4") + ".*" + sql("WHERE id = $1 AND status = 'CONFIRMED'")).
		WithArgs(int64(5), model.BookingStatusCancelledByStudent, at, &reason).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	affected, err := repo.Cancel(context.Background(), 5, model.BookingStatusCancelledByStudent, &reason, at)

	require.NoError(t, err)
	assert.Zero(t, affected, "already cancelled booking is not touched")
}

func TestBookingRepository_FindConfirmed_None(t *testing.T) {
	mock := newMockPool(t)
	repo := NewBookingRepository(mock)

	mock.ExpectQuery(sql("WHERE slot_id = $1 AND student_id = $2 AND status = 'CONFIRMED'")).
		WithArgs(int64(7), int64(1)).
		WillReturnError(pgx.ErrNoRows)

	booking, err := repo.FindConfirmed(context.Background(), 7, 1)

	require.NoError(t, err)
	assert.Nil(t, booking)
}
