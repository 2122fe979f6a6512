package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service/ports"
)

// memState - содержимое базы в памяти
type memState struct {
	slots     map[int64]*model.Slot
	bookings  map[int64]*model.Booking
	users     map[int64]*model.User
	recurring map[int64]*model.RecurringSchedule

	nextSlotID      int64
	nextBookingID   int64
	nextRecurringID int64
}

func newMemState() *memState {
	return &memState{
		slots:     make(map[int64]*model.Slot),
		bookings:  make(map[int64]*model.Booking),
		users:     make(map[int64]*model.User),
		recurring: make(map[int64]*model.RecurringSchedule),
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	for id, s := range st.slots {
		c.slots[id] = s.Clone()
	}
	for id, b := range st.bookings {
		c.bookings[id] = b.Clone()
	}
	for id, u := range st.users {
		user := *u
		c.users[id] = &user
	}
	for id, r := range st.recurring {
		schedule := *r
		c.recurring[id] = &schedule
	}
	c.nextSlotID = st.nextSlotID
	c.nextBookingID = st.nextBookingID
	c.nextRecurringID = st.nextRecurringID
	return c
}

// memDB - транзакционное хранилище для тестов. Транзакции выполняются по одной,
// изменения применяются только при успешном завершении fn.
type memDB struct {
	mu    sync.Mutex
	state *memState

	// interfere имитирует конкурентного писателя, закоммитившего изменения слота
	// между чтением и условным обновлением
	interfere func(committed *memState, slotID int64)

	casCalls int
}

func newMemDB() *memDB {
	return &memDB{state: newMemState()}
}

// memStore реализует ports.Store поверх memDB
type memStore struct {
	db *memDB
	tx *memState
}

func newMemStore() *memStore {
	return &memStore{db: newMemDB()}
}

func (s *memStore) do(fn func(st *memState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.state)
}

func (s *memStore) Slots() ports.SlotRepo                  { return memSlots{s} }
func (s *memStore) Bookings() ports.BookingRepo            { return memBookings{s} }
func (s *memStore) Users() ports.UserRepo                  { return memUsers{s} }
func (s *memStore) Recurring() ports.RecurringScheduleRepo { return memRecurring{s} }

func (s *memStore) WithinTx(ctx context.Context, fn func(tx ports.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	work := s.db.state.clone()
	if err := fn(&memStore{db: s.db, tx: work}); err != nil {
		return err
	}
	s.db.state = work
	return nil
}

// committed возвращает копию закоммиченного состояния
func (s *memStore) committed() *memState {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.state.clone()
}

func (s *memStore) addUser(u *model.User) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.state.users[u.ID] = u
}

func (s *memStore) putSlot(slot *model.Slot) *model.Slot {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if slot.ID == 0 {
		s.db.state.nextSlotID++
		slot.ID = s.db.state.nextSlotID
	} else if slot.ID > s.db.state.nextSlotID {
		s.db.state.nextSlotID = slot.ID
	}
	s.db.state.slots[slot.ID] = slot.Clone()
	return slot
}

func (s *memStore) putBooking(b *model.Booking) *model.Booking {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.state.nextBookingID++
	b.ID = s.db.state.nextBookingID
	s.db.state.bookings[b.ID] = b.Clone()
	return b
}

func (s *memStore) slot(id int64) *model.Slot {
	st := s.committed()
	if slot, ok := st.slots[id]; ok {
		return slot
	}
	return nil
}

func (s *memStore) booking(id int64) *model.Booking {
	st := s.committed()
	if b, ok := st.bookings[id]; ok {
		return b
	}
	return nil
}

func (s *memStore) confirmedCount(slotID int64) int {
	count := 0
	for _, b := range s.committed().bookings {
		if b.SlotID == slotID && b.Status == model.BookingStatusConfirmed {
			count++
		}
	}
	return count
}

func (s *memStore) casAttempts() int {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.casCalls
}

type memSlots struct{ s *memStore }

// intersects - пересечение [start, end) с интервалом слота, как в HasOverlap
func intersects(slot *model.Slot, start, end time.Time) bool {
	return slot.StartTime.Before(end) && start.Before(slot.EndTime)
}

func overlapsAny(st *memState, professorID int64, start, end time.Time) bool {
	for _, slot := range st.slots {
		if slot.ProfessorID == professorID && slot.Status != model.SlotStatusCancelled && intersects(slot, start, end) {
			return true
		}
	}
	return false
}

func (r memSlots) Create(_ context.Context, slot *model.Slot) error {
	return r.s.do(func(st *memState) error {
		if overlapsAny(st, slot.ProfessorID, slot.StartTime, slot.EndTime) {
			return model.Conflict(model.MsgSlotOverlaps)
		}
		st.nextSlotID++
		slot.ID = st.nextSlotID
		slot.CreatedAt = time.Now()
		slot.UpdatedAt = slot.CreatedAt
		st.slots[slot.ID] = slot.Clone()
		return nil
	})
}

func (r memSlots) GetByID(_ context.Context, id int64) (*model.Slot, error) {
	var out *model.Slot
	err := r.s.do(func(st *memState) error {
		if slot, ok := st.slots[id]; ok {
			out = slot.Clone()
		}
		return nil
	})
	return out, err
}

func (r memSlots) List(_ context.Context, filter model.SlotFilter) ([]*model.Slot, error) {
	var out []*model.Slot
	err := r.s.do(func(st *memState) error {
		for _, slot := range st.slots {
			if filter.ProfessorID != nil && slot.ProfessorID != *filter.ProfessorID {
				continue
			}
			if !filter.From.IsZero() && slot.StartTime.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !slot.StartTime.Before(filter.To) {
				continue
			}
			if filter.OnlyAvailable && slot.Status != model.SlotStatusAvailable {
				continue
			}
			out = append(out, slot.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, err
}

func (r memSlots) HasOverlap(_ context.Context, professorID int64, start, end time.Time) (bool, error) {
	var found bool
	err := r.s.do(func(st *memState) error {
		found = overlapsAny(st, professorID, start, end)
		return nil
	})
	return found, err
}

func (r memSlots) ConditionalUpdate(_ context.Context, id, expectedVersion int64, patch model.SlotPatch) (int64, error) {
	var affected int64
	err := r.s.do(func(st *memState) error {
		r.s.db.casCalls++
		if r.s.db.interfere != nil {
			r.s.db.interfere(r.s.db.state, id)
		}

		committed, ok := r.s.db.state.slots[id]
		if !ok || committed.Version != expectedVersion {
			return nil
		}
		slot, ok := st.slots[id]
		if !ok || slot.Version != expectedVersion {
			return nil
		}

		slot.CurrentParticipants = patch.CurrentParticipants
		slot.Status = patch.Status
		slot.Version++
		slot.UpdatedAt = time.Now()
		affected = 1
		return nil
	})
	return affected, err
}

func (r memSlots) ReleaseSeat(_ context.Context, id int64) error {
	return r.s.do(func(st *memState) error {
		slot, ok := st.slots[id]
		if !ok {
			return model.NotFound(model.MsgSlotNotFound)
		}
		slot.CurrentParticipants = max(slot.CurrentParticipants-1, 0)
		slot.Status = model.DeriveStatus(slot.Status, slot.CurrentParticipants, slot.MaxParticipants)
		slot.Version++
		return nil
	})
}

func (r memSlots) AssignMeetingRoom(_ context.Context, id int64, room string) (string, error) {
	var stored string
	err := r.s.do(func(st *memState) error {
		slot, ok := st.slots[id]
		if !ok {
			return model.NotFound(model.MsgSlotNotFound)
		}
		if slot.MeetingRoom == nil {
			slot.MeetingRoom = &room
		}
		stored = *slot.MeetingRoom
		return nil
	})
	return stored, err
}

func (r memSlots) SetAllowList(_ context.Context, id int64, isPrivate bool, studentIDs []int64) error {
	return r.s.do(func(st *memState) error {
		slot, ok := st.slots[id]
		if !ok {
			return model.NotFound(model.MsgSlotNotFound)
		}
		slot.IsPrivate = isPrivate
		slot.AllowedStudentIDs = append([]int64(nil), studentIDs...)
		return nil
	})
}

func (r memSlots) MarkStarted(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(st *memState) error {
		for _, slot := range st.slots {
			if slot.Status.IsOpen() && !slot.StartTime.After(now) && slot.EndTime.After(now) {
				slot.Status = model.SlotStatusInProgress
				slot.Version++
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memSlots) MarkCompleted(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(st *memState) error {
		for _, slot := range st.slots {
			active := slot.Status.IsOpen() || slot.Status == model.SlotStatusInProgress
			if active && !slot.EndTime.After(now) {
				slot.Status = model.SlotStatusCompleted
				slot.Version++
				n++
			}
		}
		return nil
	})
	return n, err
}

type memBookings struct{ s *memStore }

func (r memBookings) Create(_ context.Context, booking *model.Booking) error {
	return r.s.do(func(st *memState) error {
		for _, b := range st.bookings {
			if b.SlotID == booking.SlotID && b.StudentID == booking.StudentID && b.Status == model.BookingStatusConfirmed {
				return model.Conflict(model.MsgAlreadyBooked)
			}
		}
		st.nextBookingID++
		booking.ID = st.nextBookingID
		booking.BookedAt = time.Now()
		booking.UpdatedAt = booking.BookedAt
		st.bookings[booking.ID] = booking.Clone()
		return nil
	})
}

func (r memBookings) GetByID(_ context.Context, id int64) (*model.Booking, error) {
	var out *model.Booking
	err := r.s.do(func(st *memState) error {
		if b, ok := st.bookings[id]; ok {
			out = b.Clone()
		}
		return nil
	})
	return out, err
}

func (r memBookings) FindConfirmed(_ context.Context, slotID, studentID int64) (*model.Booking, error) {
	var out *model.Booking
	err := r.s.do(func(st *memState) error {
		for _, b := range st.bookings {
			if b.SlotID == slotID && b.StudentID == studentID && b.Status == model.BookingStatusConfirmed {
				out = b.Clone()
			}
		}
		return nil
	})
	return out, err
}

func (r memBookings) list(match func(*model.Booking) bool) ([]*model.Booking, error) {
	var out []*model.Booking
	err := r.s.do(func(st *memState) error {
		for _, b := range st.bookings {
			if match(b) {
				out = append(out, b.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r memBookings) ListBySlot(_ context.Context, slotID int64) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool { return b.SlotID == slotID })
}

func (r memBookings) ListByStudent(_ context.Context, studentID int64) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool { return b.StudentID == studentID })
}

func (r memBookings) Cancel(_ context.Context, id int64, status model.BookingStatus, reason *string, at time.Time) (int64, error) {
	var affected int64
	err := r.s.do(func(st *memState) error {
		b, ok := st.bookings[id]
		if !ok || b.Status != model.BookingStatusConfirmed {
			return nil
		}
		b.Status = status
		b.CancelledAt = &at
		b.CancellationReason = reason
		affected = 1
		return nil
	})
	return affected, err
}

func (r memBookings) CancelAllForSlot(_ context.Context, slotID int64, reason *string, at time.Time) ([]*model.Booking, error) {
	var out []*model.Booking
	err := r.s.do(func(st *memState) error {
		for _, b := range st.bookings {
			if b.SlotID == slotID && b.Status == model.BookingStatusConfirmed {
				b.Status = model.BookingStatusCancelledByProfessor
				b.CancelledAt = &at
				b.CancellationReason = reason
				out = append(out, b.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (r memBookings) CompleteForFinishedSlots(_ context.Context) (int64, error) {
	var n int64
	err := r.s.do(func(st *memState) error {
		for _, b := range st.bookings {
			slot, ok := st.slots[b.SlotID]
			if ok && slot.Status == model.SlotStatusCompleted && b.Status == model.BookingStatusConfirmed {
				b.Status = model.BookingStatusCompleted
				n++
			}
		}
		return nil
	})
	return n, err
}

type memUsers struct{ s *memStore }

func (r memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := r.s.do(func(st *memState) error {
		if u, ok := st.users[id]; ok {
			user := *u
			out = &user
		}
		return nil
	})
	return out, err
}

type memRecurring struct{ s *memStore }

func (r memRecurring) Create(_ context.Context, schedule *model.RecurringSchedule) error {
	return r.s.do(func(st *memState) error {
		st.nextRecurringID++
		schedule.ID = st.nextRecurringID
		copied := *schedule
		st.recurring[schedule.ID] = &copied
		return nil
	})
}

func (r memRecurring) GetByID(_ context.Context, id int64) (*model.RecurringSchedule, error) {
	var out *model.RecurringSchedule
	err := r.s.do(func(st *memState) error {
		if sc, ok := st.recurring[id]; ok {
			copied := *sc
			out = &copied
		}
		return nil
	})
	return out, err
}

func (r memRecurring) GetByProfessorID(_ context.Context, professorID int64) ([]*model.RecurringSchedule, error) {
	var out []*model.RecurringSchedule
	err := r.s.do(func(st *memState) error {
		for _, sc := range st.recurring {
			if sc.ProfessorID == professorID {
				copied := *sc
				out = append(out, &copied)
			}
		}
		return nil
	})
	return out, err
}

func (r memRecurring) GetAllActive(_ context.Context) ([]*model.RecurringSchedule, error) {
	var out []*model.RecurringSchedule
	err := r.s.do(func(st *memState) error {
		for _, sc := range st.recurring {
			if sc.IsActive {
				copied := *sc
				out = append(out, &copied)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r memRecurring) Deactivate(_ context.Context, id int64) error {
	return r.s.do(func(st *memState) error {
		sc, ok := st.recurring[id]
		if !ok {
			return model.NotFound(model.MsgScheduleNotFound)
		}
		sc.IsActive = false
		return nil
	})
}

// recordingNotifier запоминает уведомления
type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []*model.Booking
	cancelled []cancelNotice
}

type cancelNotice struct {
	booking     *model.Booking
	slot        *model.Slot
	reason      string
	cancelledBy model.Role
}

func (n *recordingNotifier) NotifyBookingConfirmed(_ context.Context, _ *model.Slot, booking *model.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, booking)
}

func (n *recordingNotifier) NotifyBookingCancelled(_ context.Context, slot *model.Slot, booking *model.Booking, reason string, by model.Role) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, cancelNotice{booking: booking, slot: slot, reason: reason, cancelledBy: by})
}

func (n *recordingNotifier) confirmedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed)
}

func (n *recordingNotifier) cancellations() []cancelNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]cancelNotice(nil), n.cancelled...)
}

// stubRooms выдаёт комнаты с именем по номеру слота
type stubRooms struct {
	mu    sync.Mutex
	calls int
	err   error
	// hang - CreateRoom ждёт отмены контекста
	hang bool
}

func (p *stubRooms) CreateRoom(ctx context.Context, slot *model.Slot) (string, error) {
	p.mu.Lock()
	p.calls++
	hang := p.hang
	p.mu.Unlock()
	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("room-%d", slot.ID), nil
}

func (p *stubRooms) JoinURL(room, displayName string) (string, error) {
	return "https://meet.test/" + room + "#" + displayName, nil
}
