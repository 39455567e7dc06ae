package core

import (
	"context"

	"github.com/dkeye/Consult/internal/domain"
)

// ConsultationDirectory decides which users may join which consultation room.
// Identity itself is verified upstream, before a join request reaches the core.
type ConsultationDirectory interface {
	Authorize(ctx context.Context, room domain.RoomID, user *domain.User) error
}
