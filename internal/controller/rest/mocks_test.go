package rest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Freeeeeet/tutor_booking/internal/cache"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/stretchr/testify/mock"
)

type mockBookingSvc struct{ mock.Mock }

func newMockBookingSvc(t *testing.T) *mockBookingSvc {
	m := &mockBookingSvc{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockBookingSvc) Reserve(ctx context.Context, slotID, studentID int64) (*service.ReserveResult, error) {
	args := m.Called(ctx, slotID, studentID)
	res, _ := args.Get(0).(*service.ReserveResult)
	return res, args.Error(1)
}

func (m *mockBookingSvc) Cancel(ctx context.Context, bookingID int64, actor model.Actor, reason string) (*model.Booking, error) {
	args := m.Called(ctx, bookingID, actor, reason)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookingSvc) GetBooking(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error) {
	args := m.Called(ctx, bookingID, actor)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookingSvc) ListStudentBookings(ctx context.Context, studentID int64) ([]*model.Booking, error) {
	args := m.Called(ctx, studentID)
	b, _ := args.Get(0).([]*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookingSvc) ListSlotBookings(ctx context.Context, slotID int64) ([]*model.Booking, error) {
	args := m.Called(ctx, slotID)
	b, _ := args.Get(0).([]*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookingSvc) JoinLink(ctx context.Context, slotID int64, actor model.Actor) (string, error) {
	args := m.Called(ctx, slotID, actor)
	return args.String(0), args.Error(1)
}

type mockSlotSvc struct{ mock.Mock }

func newMockSlotSvc(t *testing.T) *mockSlotSvc {
	m := &mockSlotSvc{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockSlotSvc) CreateSlot(ctx context.Context, actor model.Actor, input model.CreateSlotInput) (*model.Slot, error) {
	args := m.Called(ctx, actor, input)
	s, _ := args.Get(0).(*model.Slot)
	return s, args.Error(1)
}

func (m *mockSlotSvc) CreateRecurring(ctx context.Context, actor model.Actor, pattern *model.RecurringSchedule) ([]*model.Slot, error) {
	args := m.Called(ctx, actor, pattern)
	s, _ := args.Get(0).([]*model.Slot)
	return s, args.Error(1)
}

func (m *mockSlotSvc) ListRecurring(ctx context.Context, actor model.Actor) ([]*model.RecurringSchedule, error) {
	args := m.Called(ctx, actor)
	s, _ := args.Get(0).([]*model.RecurringSchedule)
	return s, args.Error(1)
}

func (m *mockSlotSvc) DeactivateRecurring(ctx context.Context, actor model.Actor, scheduleID int64) error {
	return m.Called(ctx, actor, scheduleID).Error(0)
}

func (m *mockSlotSvc) CancelSlot(ctx context.Context, slotID int64, actor model.Actor, reason string) (*model.Slot, error) {
	args := m.Called(ctx, slotID, actor, reason)
	s, _ := args.Get(0).(*model.Slot)
	return s, args.Error(1)
}

func (m *mockSlotSvc) SetAllowList(ctx context.Context, slotID int64, actor model.Actor, isPrivate bool, studentIDs []int64) (*model.Slot, error) {
	args := m.Called(ctx, slotID, actor, isPrivate, studentIDs)
	s, _ := args.Get(0).(*model.Slot)
	return s, args.Error(1)
}

func (m *mockSlotSvc) GetSlot(ctx context.Context, slotID int64, actor model.Actor) (*model.Slot, error) {
	args := m.Called(ctx, slotID, actor)
	s, _ := args.Get(0).(*model.Slot)
	return s, args.Error(1)
}

func (m *mockSlotSvc) ListSlots(ctx context.Context, filter model.SlotFilter, actor model.Actor) ([]*model.Slot, error) {
	args := m.Called(ctx, filter, actor)
	s, _ := args.Get(0).([]*model.Slot)
	return s, args.Error(1)
}

// memIdempotency - IdempotencyStore в памяти
type memIdempotency struct {
	mu       sync.Mutex
	entries  map[string]*cache.StoredResponse
	pending  map[string]bool
	err      error
	released int
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{
		entries: map[string]*cache.StoredResponse{},
		pending: map[string]bool{},
	}
}

func memKey(userID int64, scope, key string) string {
	return fmt.Sprintf("%d:%s:%s", userID, scope, key)
}

func (s *memIdempotency) Begin(_ context.Context, userID int64, scope, key string) (*cache.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	k := memKey(userID, scope, key)
	if resp, ok := s.entries[k]; ok {
		return resp, nil
	}
	if s.pending[k] {
		return nil, cache.ErrRequestInProgress
	}
	s.pending[k] = true
	return nil, nil
}

func (s *memIdempotency) Save(_ context.Context, userID int64, scope, key string, resp cache.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(userID, scope, key)
	delete(s.pending, k)
	s.entries[k] = &resp
	return nil
}

func (s *memIdempotency) Release(_ context.Context, userID int64, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, memKey(userID, scope, key))
	s.released++
	return nil
}
