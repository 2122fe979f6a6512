package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// FormatTimeRange форматирует диапазон времени
func FormatTimeRange(start, end time.Time) string {
	return fmt.Sprintf("%s-%s", start.Format("15:04"), end.Format("15:04"))
}

// SlotTitle - название слота или тип занятия, если название пустое
func SlotTitle(slot *model.Slot) string {
	if t := strings.TrimSpace(slot.Title); t != "" {
		return t
	}
	if slot.Type == model.SlotTypeGroup {
		return "Групповое занятие"
	}
	return "Индивидуальное занятие"
}

// SlotWhen - дата и время слота в часовом поясе loc
func SlotWhen(slot *model.Slot, loc *time.Location) string {
	start := slot.StartTime.In(loc)
	end := slot.EndTime.In(loc)
	return fmt.Sprintf("%s, %s", start.Format("02.01.2006"), FormatTimeRange(start, end))
}

func bookingConfirmedForStudent(slot *model.Slot, booking *model.Booking, loc *time.Location) string {
	return fmt.Sprintf(
		"✅ Запись подтверждена\n\n"+
			"%s\n"+
			"📅 %s\n"+
			"Бронирование #%d",
		SlotTitle(slot),
		SlotWhen(slot, loc),
		booking.ID,
	)
}

func bookingConfirmedForProfessor(slot *model.Slot, student *model.User, loc *time.Location) string {
	return fmt.Sprintf(
		"🆕 Новая запись\n\n"+
			"%s записался(ась) на \"%s\"\n"+
			"📅 %s\n"+
			"👥 %d/%d",
		displayName(student),
		SlotTitle(slot),
		SlotWhen(slot, loc),
		slot.CurrentParticipants,
		slot.MaxParticipants,
	)
}

func bookingCancelledForStudent(slot *model.Slot, booking *model.Booking, reason string, by model.Role, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("❌ Отмена занятия\n\n")
	if by == model.RoleAdmin {
		fmt.Fprintf(&b, "Преподаватель отменил вашу запись на \"%s\".\n", SlotTitle(slot))
	} else {
		fmt.Fprintf(&b, "Вы отменили запись на \"%s\".\n", SlotTitle(slot))
	}
	fmt.Fprintf(&b, "📅 %s\nБронирование #%d", SlotWhen(slot, loc), booking.ID)
	if reason != "" {
		fmt.Fprintf(&b, "\n\nПричина: %s", reason)
	}
	return b.String()
}

func bookingCancelledForProfessor(slot *model.Slot, student *model.User, reason string, loc *time.Location) string {
	text := fmt.Sprintf(
		"⚠️ Студент отменил запись\n\n"+
			"%s больше не придёт на \"%s\"\n"+
			"📅 %s\n"+
			"👥 %d/%d",
		displayName(student),
		SlotTitle(slot),
		SlotWhen(slot, loc),
		slot.CurrentParticipants,
		slot.MaxParticipants,
	)
	if reason != "" {
		text += "\n\nПричина: " + reason
	}
	return text
}

func displayName(u *model.User) string {
	if u == nil {
		return "Студент"
	}
	if u.FullName != "" {
		return u.FullName
	}
	if u.Email != "" {
		return u.Email
	}
	return fmt.Sprintf("Студент #%d", u.ID)
}
