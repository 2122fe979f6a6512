package ports

import (
	"context"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

type RoomProvider interface {
	// CreateRoom идемпотентен в пределах слота
	CreateRoom(ctx context.Context, slot *model.Slot) (string, error)
	JoinURL(room, displayName string) (string, error)
}
