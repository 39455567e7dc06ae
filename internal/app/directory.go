package app

import (
	"context"
	"errors"
	"strings"

	"github.com/dkeye/Consult/internal/domain"
)

var ErrNotAuthorized = errors.New("user is not part of this consultation")

// OpenDirectory admits any user to any room.
type OpenDirectory struct{}

func (OpenDirectory) Authorize(context.Context, domain.RoomID, *domain.User) error { return nil }

// StaticDirectory admits only users listed for a room. Rooms without a
// listing are rejected. Room ids match case-insensitively since config
// keys arrive lowercased.
type StaticDirectory struct {
	allowed map[domain.RoomID]map[domain.UserID]struct{}
}

func NewStaticDirectory(rooms map[string][]string) *StaticDirectory {
	d := &StaticDirectory{allowed: make(map[domain.RoomID]map[domain.UserID]struct{}, len(rooms))}
	for room, users := range rooms {
		set := make(map[domain.UserID]struct{}, len(users))
		for _, u := range users {
			set[domain.UserID(u)] = struct{}{}
		}
		d.allowed[roomKey(domain.RoomID(room))] = set
	}
	return d
}

func (d *StaticDirectory) Authorize(ctx context.Context, room domain.RoomID, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	users, ok := d.allowed[roomKey(room)]
	if !ok || user == nil {
		return ErrNotAuthorized
	}
	if _, ok := users[user.ID]; !ok {
		return ErrNotAuthorized
	}
	return nil
}

func roomKey(room domain.RoomID) domain.RoomID {
	return domain.RoomID(strings.ToLower(string(room)))
}
