package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrSessionInRoom = errors.New("session already in a room")

// LeaveResult describes a completed leave.
type LeaveResult struct {
	RoomID    domain.RoomID
	Member    core.MemberSession
	Remaining []core.MemberSession
	// RoomClosed is set when the leave emptied and deleted the room.
	RoomClosed bool
}

// Registry is the authoritative room -> members mapping.
// A room exists iff it has at least one member.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
	index map[domain.SessionID]domain.RoomID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomID]core.RoomService),
		index: make(map[domain.SessionID]domain.RoomID),
	}
}

// Join registers ms under roomID, creating the room if absent. The returned
// snapshot includes ms itself, in insertion order.
func (r *Registry) Join(roomID domain.RoomID, ms core.MemberSession) (core.RoomService, []core.MemberSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.index[ms.SID()]; ok {
		log.Warn().Str("module", "app.registry").Str("sid", string(ms.SID())).Str("room", string(cur)).Msg("join while in room")
		return nil, nil, ErrSessionInRoom
	}
	room, ok := r.rooms[roomID]
	if !ok {
		room = core.NewRoomService(&domain.Room{ID: roomID})
		r.rooms[roomID] = room
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room created")
	}
	room.AddMember(ms)
	r.index[ms.SID()] = roomID
	return room, room.Members(), nil
}

// Leave removes sid from whichever room holds it. Leaving twice is a no-op.
func (r *Registry) Leave(sid domain.SessionID) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.index[sid]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.index, sid)
	room, ok := r.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}
	ms, ok := room.RemoveMember(sid)
	if !ok {
		return LeaveResult{}, false
	}
	res := LeaveResult{RoomID: roomID, Member: ms, Remaining: room.Members()}
	if len(res.Remaining) == 0 {
		delete(r.rooms, roomID)
		res.RoomClosed = true
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room deleted")
	}
	return res, true
}

// ListMembers returns members in insertion order, or false for an absent room.
func (r *Registry) ListMembers(roomID domain.RoomID) ([]core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.Members(), true
}

func (r *Registry) Room(roomID domain.RoomID) (core.RoomService, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *Registry) RoomOf(sid domain.SessionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.index[sid]
	return roomID, ok
}

// Session looks up a joined session in any room.
func (r *Registry) Session(sid domain.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.index[sid]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.Member(sid)
}

// MembersByUser finds sessions in roomID that belong to user.
func (r *Registry) MembersByUser(roomID domain.RoomID, user domain.UserID) []core.MemberSession {
	members, ok := r.ListMembers(roomID)
	if !ok {
		return nil
	}
	var out []core.MemberSession
	for _, ms := range members {
		if ms.Meta().User.ID == user {
			out = append(out, ms)
		}
	}
	return out
}

func (r *Registry) List() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: room.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
