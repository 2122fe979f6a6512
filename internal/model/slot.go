package model

import "time"

type SlotType string

const (
	SlotTypeIndividual SlotType = "INDIVIDUAL"
	SlotTypeGroup      SlotType = "GROUP"
)

type SlotStatus string

const (
	SlotStatusAvailable   SlotStatus = "AVAILABLE"
	SlotStatusFullyBooked SlotStatus = "FULLY_BOOKED"
	SlotStatusInProgress  SlotStatus = "IN_PROGRESS"
	SlotStatusCompleted   SlotStatus = "COMPLETED"
	SlotStatusCancelled   SlotStatus = "CANCELLED"
)

// IsTerminal сообщает, что из статуса больше нет переходов
func (s SlotStatus) IsTerminal() bool {
	return s == SlotStatusCancelled || s == SlotStatusCompleted
}

// IsOpen - слот ещё не начался и не отменён, счётчик участников определяет статус
func (s SlotStatus) IsOpen() bool {
	return s == SlotStatusAvailable || s == SlotStatusFullyBooked
}

type Slot struct {
	ID                  int64      `json:"id"`
	ProfessorID         int64      `json:"professor_id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             time.Time  `json:"end_time"`
	Type                SlotType   `json:"type"`
	MaxParticipants     int        `json:"max_participants"`
	CurrentParticipants int        `json:"current_participants"`
	Status              SlotStatus `json:"status"`
	Version             int64      `json:"version"` // токен оптимистичной блокировки
	IsPrivate           bool       `json:"is_private"`
	AllowedStudentIDs   []int64    `json:"allowed_student_ids,omitempty"`
	RecurringScheduleID *int64     `json:"recurring_schedule_id,omitempty"`
	MeetingRoom         *string    `json:"meeting_room,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SlotPatch - изменения слота, применяемые условным обновлением по версии
type SlotPatch struct {
	CurrentParticipants int
	Status              SlotStatus
}

// DeriveStatus вычисляет статус открытого слота по числу участников.
// Терминальные статусы и IN_PROGRESS не меняются.
func DeriveStatus(current SlotStatus, participants, capacity int) SlotStatus {
	if !current.IsOpen() {
		return current
	}
	if participants >= capacity {
		return SlotStatusFullyBooked
	}
	return SlotStatusAvailable
}

// IsAllowed проверяет, может ли студент видеть и бронировать слот
func (s *Slot) IsAllowed(studentID int64) bool {
	if !s.IsPrivate {
		return true
	}
	for _, id := range s.AllowedStudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// HasCapacity - остались ли свободные места
func (s *Slot) HasCapacity() bool {
	return s.CurrentParticipants < s.MaxParticipants
}

// MeetingRoomName возвращает имя комнаты или пустую строку
func (s *Slot) MeetingRoomName() string {
	if s.MeetingRoom == nil {
		return ""
	}
	return *s.MeetingRoom
}

// Clone возвращает копию слота, не разделяющую allow-list
func (s *Slot) Clone() *Slot {
	c := *s
	if s.AllowedStudentIDs != nil {
		c.AllowedStudentIDs = append([]int64(nil), s.AllowedStudentIDs...)
	}
	if s.MeetingRoom != nil {
		room := *s.MeetingRoom
		c.MeetingRoom = &room
	}
	if s.RecurringScheduleID != nil {
		id := *s.RecurringScheduleID
		c.RecurringScheduleID = &id
	}
	return &c
}

// SlotFilter - параметры выборки слотов
type SlotFilter struct {
	ProfessorID   *int64
	From          time.Time
	To            time.Time
	OnlyAvailable bool
}

// CreateSlotInput - данные для создания одиночного слота
type CreateSlotInput struct {
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	Type              SlotType
	MaxParticipants   int
	IsPrivate         bool
	AllowedStudentIDs []int64
}
