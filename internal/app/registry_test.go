package app

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func member(sid, user string) core.MemberSession {
	u := &domain.User{ID: domain.UserID(user), Username: user, Role: domain.RolePatient}
	return core.NewMemberSession(domain.NewMember(domain.SessionID(sid), u), nopConn{})
}

func sids(ms []core.MemberSession) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.SID())
	}
	return out
}

func TestRegistryJoinReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	_, snap, err := r.Join("r1", member("a", "ua"))
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"a"}, sids(snap))

	_, snap, err = r.Join("r1", member("b", "ub"))
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"a", "b"}, sids(snap))

	_, _, err = r.Join("r2", member("a", "ua"))
	assert.ErrorIs(t, err, ErrSessionInRoom)

	roomID, ok := r.RoomOf("b")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), roomID)

	ms, ok := r.Session("a")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("ua"), ms.Meta().User.ID)
	assert.Len(t, r.MembersByUser("r1", "ub"), 1)
	assert.Empty(t, r.MembersByUser("nope", "ub"))
}

func TestRegistryLeaveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	_, _, _ = r.Join("r1", member("a", "ua"))
	_, _, _ = r.Join("r1", member("b", "ub"))

	res, ok := r.Leave("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), res.RoomID)
	assert.Equal(t, []domain.SessionID{"b"}, sids(res.Remaining))
	assert.False(t, res.RoomClosed)
	after := r.List()

	_, ok = r.Leave("a")
	assert.False(t, ok)
	assert.Equal(t, after, r.List())

	res, ok = r.Leave("b")
	require.True(t, ok)
	assert.True(t, res.RoomClosed)
	_, ok = r.ListMembers("r1")
	assert.False(t, ok)
	_, ok = r.Room("r1")
	assert.False(t, ok)
}

// Random join/leave sequences must never leave an empty room behind and
// must keep the session index consistent with room membership.
func TestRegistryInvariantUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry()
	rooms := []domain.RoomID{"r1", "r2", "r3"}
	joined := map[domain.SessionID]domain.RoomID{}

	for step := 0; step < 2000; step++ {
		sid := domain.SessionID(fmt.Sprintf("s%d", rng.Intn(30)))
		if rng.Intn(2) == 0 {
			room := rooms[rng.Intn(len(rooms))]
			_, snap, err := r.Join(room, member(string(sid), "u"+string(sid)))
			if _, in := joined[sid]; in {
				require.ErrorIs(t, err, ErrSessionInRoom)
				continue
			}
			require.NoError(t, err)
			require.Equal(t, sid, snap[len(snap)-1].SID())
			joined[sid] = room
		} else {
			_, ok := r.Leave(sid)
			_, in := joined[sid]
			require.Equal(t, in, ok)
			delete(joined, sid)
		}

		total := 0
		for _, info := range r.List() {
			require.Positive(t, info.MemberCount, "room %s is empty", info.ID)
			members, ok := r.ListMembers(info.ID)
			require.True(t, ok)
			for _, m := range members {
				require.Equal(t, joined[m.SID()], info.ID)
			}
			total += info.MemberCount
		}
		require.Equal(t, len(joined), total)
	}
}

func TestStaticDirectory(t *testing.T) {
	d := NewStaticDirectory(map[string][]string{"c-1": {"doc", "pat"}})
	ctx := context.Background()
	assert.NoError(t, d.Authorize(ctx, "c-1", &domain.User{ID: "pat"}))
	assert.ErrorIs(t, d.Authorize(ctx, "c-1", &domain.User{ID: "other"}), ErrNotAuthorized)
	assert.ErrorIs(t, d.Authorize(ctx, "c-2", &domain.User{ID: "doc"}), ErrNotAuthorized)
	assert.ErrorIs(t, d.Authorize(ctx, "c-1", nil), ErrNotAuthorized)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, d.Authorize(cancelled, "c-1", &domain.User{ID: "doc"}), context.Canceled)

	assert.NoError(t, OpenDirectory{}.Authorize(ctx, "any", &domain.User{ID: "x"}))
}

func TestStaticDirectoryRoomCase(t *testing.T) {
	// viper hands map keys over lowercased
	d := NewStaticDirectory(map[string][]string{"appt-abc": {"doc"}})
	ctx := context.Background()
	assert.NoError(t, d.Authorize(ctx, "Appt-ABC", &domain.User{ID: "doc"}))
	assert.NoError(t, d.Authorize(ctx, "appt-abc", &domain.User{ID: "doc"}))
	assert.ErrorIs(t, d.Authorize(ctx, "Appt-ABC", &domain.User{ID: "Doc"}), ErrNotAuthorized)
}

func TestSimplePolicyKicks(t *testing.T) {
	assert.Equal(t, KickMember, SimplePolicy{}.OnBackPressure(nil, nil))
	assert.Equal(t, DropFrame, LenientPolicy{}.OnBackPressure(nil, nil))
}
