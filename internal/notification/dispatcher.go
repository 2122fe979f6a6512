package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service/ports"
	"go.uber.org/zap"
)

type noticeKind string

const (
	noticeConfirmed noticeKind = "booking_confirmed"
	noticeCancelled noticeKind = "booking_cancelled"
)

type notice struct {
	kind        noticeKind
	slot        *model.Slot
	booking     *model.Booking
	reason      string
	cancelledBy model.Role
}

// Dispatcher доставляет уведомления о бронированиях из ограниченной очереди.
// Постановка в очередь никогда не блокирует: при переполнении уведомление отбрасывается.
type Dispatcher struct {
	users    ports.UserRepo
	sender   Sender
	location *time.Location
	workers  int
	logger   *zap.Logger

	queue  chan notice
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(
	users ports.UserRepo,
	sender Sender,
	location *time.Location,
	queueSize, workers int,
	logger *zap.Logger,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if location == nil {
		location = time.UTC
	}
	return &Dispatcher{
		users:    users,
		sender:   sender,
		location: location,
		workers:  workers,
		logger:   logger,
		queue:    make(chan notice, queueSize),
	}
}

// Start запускает воркеры. Они работают до Shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.Info("Notification dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.queue)))
}

// Shutdown закрывает очередь и ждёт доставки оставшихся уведомлений
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notification queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) NotifyBookingConfirmed(_ context.Context, slot *model.Slot, booking *model.Booking) {
	d.enqueue(notice{kind: noticeConfirmed, slot: slot, booking: booking})
}

func (d *Dispatcher) NotifyBookingCancelled(_ context.Context, slot *model.Slot, booking *model.Booking, reason string, cancelledBy model.Role) {
	d.enqueue(notice{kind: noticeCancelled, slot: slot, booking: booking, reason: reason, cancelledBy: cancelledBy})
}

func (d *Dispatcher) enqueue(n notice) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Notification dispatcher is stopped, dropping notice",
			zap.String("kind", string(n.kind)),
			zap.Int64("booking_id", n.booking.ID),
		)
		return
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("Notification queue is full, dropping notice",
			zap.String("kind", string(n.kind)),
			zap.Int64("booking_id", n.booking.ID),
		)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n notice) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Notification delivery panicked", zap.Any("panic", r), zap.Int64("booking_id", n.booking.ID))
		}
	}()

	student := d.lookup(ctx, n.booking.StudentID)
	professor := d.lookup(ctx, n.slot.ProfessorID)

	switch n.kind {
	case noticeConfirmed:
		d.send(ctx, student, bookingConfirmedForStudent(n.slot, n.booking, d.location), n)
		d.send(ctx, professor, bookingConfirmedForProfessor(n.slot, student, d.location), n)
	case noticeCancelled:
		d.send(ctx, student, bookingCancelledForStudent(n.slot, n.booking, n.reason, n.cancelledBy, d.location), n)
		if n.cancelledBy != model.RoleAdmin {
			d.send(ctx, professor, bookingCancelledForProfessor(n.slot, student, n.reason, d.location), n)
		}
	}
}

func (d *Dispatcher) lookup(ctx context.Context, userID int64) *model.User {
	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		d.logger.Warn("Failed to get user for notification", zap.Int64("user_id", userID), zap.Error(err))
		return nil
	}
	return user
}

func (d *Dispatcher) send(ctx context.Context, user *model.User, text string, n notice) {
	if user == nil || user.TelegramID == nil {
		d.logger.Debug("User has no telegram chat, skipping notification",
			zap.String("kind", string(n.kind)),
			zap.Int64("booking_id", n.booking.ID),
		)
		return
	}

	if err := d.sender.Send(ctx, *user.TelegramID, text); err != nil {
		d.logger.Error("Failed to send notification",
			zap.String("kind", string(n.kind)),
			zap.Int64("user_id", user.ID),
			zap.Int64("booking_id", n.booking.ID),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("Notification sent",
		zap.String("kind", string(n.kind)),
		zap.Int64("user_id", user.ID),
	)
}
