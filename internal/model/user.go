package model

import "time"

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN" // преподаватель, управляющий расписанием
)

type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       Role      `json:"role"`
	TelegramID *int64    `json:"telegram_id,omitempty"` // nil - уведомления в Telegram не отправляются
	CreatedAt  time.Time `json:"created_at"`
}

// Actor - аутентифицированный пользователь, от имени которого выполняется операция
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
