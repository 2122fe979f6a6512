package ports

import (
	"context"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// BookingNotifier принимает уведомления после коммита. Реализация не должна блокировать
// вызывающего и не возвращает ошибок: сбой доставки не влияет на результат операции.
type BookingNotifier interface {
	NotifyBookingConfirmed(ctx context.Context, slot *model.Slot, booking *model.Booking)
	NotifyBookingCancelled(ctx context.Context, slot *model.Slot, booking *model.Booking, reason string, cancelledBy model.Role)
}
