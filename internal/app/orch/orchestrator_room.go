package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join admits a connecting session into roomID. The joiner gets room-joined
// with the members present before it; each of them gets participant-joined.
// Both events carry the same room sequence number.
func (o *Orchestrator) Join(ctx context.Context, sid domain.SessionID, roomID domain.RoomID, user *domain.User) error {
	if roomID == "" || len(roomID) > domain.MaxRoomIDLen {
		return ErrInvalidRoom
	}
	if user == nil {
		return fmt.Errorf("join: %w", domain.ErrUserIDEmpty)
	}
	if o.Directory != nil {
		if err := o.Directory.Authorize(ctx, roomID, user); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Str("user", string(user.ID)).Msg("join refused")
			return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[sid]
	if !ok {
		return ErrNotConnected
	}
	switch s.state {
	case stateJoined:
		return ErrAlreadyJoined
	case stateLeft:
		return ErrSessionLeft
	}

	// A reconnecting user leaves a ghost session behind until its socket
	// times out. Close it now so peers drop the stale link immediately.
	for _, stale := range o.Registry.MembersByUser(roomID, user.ID) {
		o.kickLocked(stale.SID(), "replaced by "+string(sid))
	}

	ms := core.NewMemberSession(domain.NewMember(sid, user), s.conn)
	room, snapshot, err := o.Registry.Join(roomID, ms)
	if err != nil {
		if errors.Is(err, app.ErrSessionInRoom) {
			return ErrAlreadyJoined
		}
		return err
	}
	s.state = stateJoined

	prior := make([]core.MemberDTO, 0, len(snapshot))
	for _, m := range snapshot {
		if m.SID() != sid {
			prior = append(prior, core.NewMemberDTO(m.Meta()))
		}
	}
	seq := room.NextSeq()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Str("user", string(user.ID)).Int("prior", len(prior)).Uint64("seq", seq).Msg("joined")

	o.sendLocked(room, ms, protocol.TypeRoomJoined, seq, protocol.RoomJoined{
		RoomID:       roomID,
		SessionID:    sid,
		Participants: prior,
	})
	if s.state != stateJoined {
		// kicked on its own room-joined; peers were never told it arrived
		return ErrSessionLeft
	}
	o.broadcastLocked(room, sid, protocol.TypeParticipantJoined, seq, participantOf(roomID, ms.Meta()))
	return nil
}

// Leave is an explicit leave. The session stays connected but cannot join
// again. Returns false when the session was not in a room.
func (o *Orchestrator) Leave(sid domain.SessionID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sid]
	if !ok || s.state != stateJoined {
		return false
	}
	res, left := o.leaveLocked(sid)
	s.state = stateLeft
	if frame, err := protocol.Encode(protocol.TypeLeft, 0, protocol.RoomRef{RoomID: res.RoomID}); err == nil {
		_ = s.conn.TrySend(frame)
	}
	return left
}

// Disconnect handles transport close. It is an implicit leave and forgets
// the session entirely.
func (o *Orchestrator) Disconnect(sid domain.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// kicked and ended sessions are already out of the registry
	o.leaveLocked(sid)
	delete(o.sessions, sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

// leaveLocked removes sid from its room and tells the remaining members.
func (o *Orchestrator) leaveLocked(sid domain.SessionID) (app.LeaveResult, bool) {
	res, ok := o.Registry.Leave(sid)
	if !ok {
		return res, false
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(res.RoomID)).Int("remaining", len(res.Remaining)).Msg("left")
	if res.RoomClosed {
		return res, true
	}
	room, ok := o.Registry.Room(res.RoomID)
	if !ok {
		return res, true
	}
	seq := room.NextSeq()
	o.broadcastLocked(room, "", protocol.TypeParticipantLeft, seq, participantOf(res.RoomID, res.Member.Meta()))
	return res, true
}

// EndConsultation ends roomID on behalf of a member.
func (o *Orchestrator) EndConsultation(sid domain.SessionID, roomID domain.RoomID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ms, err := o.memberLocked(sid, roomID)
	if err != nil {
		return err
	}
	o.endLocked(roomID, string(ms.Meta().User.ID))
	return nil
}

// EndRoom ends roomID without a member initiator, e.g. from the HTTP API.
func (o *Orchestrator) EndRoom(roomID domain.RoomID, endedBy string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.endLocked(roomID, endedBy)
}

// endLocked notifies every member and then removes all of them. No
// participant-left events follow consultation-ended.
func (o *Orchestrator) endLocked(roomID domain.RoomID, endedBy string) bool {
	room, ok := o.Registry.Room(roomID)
	if !ok {
		return false
	}
	seq := room.NextSeq()
	frame, err := protocol.Encode(protocol.TypeConsultationEnded, seq, protocol.ConsultationEnded{RoomID: roomID, EndedBy: endedBy})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode")
		return false
	}
	members := room.Members()
	for _, m := range members {
		if err := m.Signal().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(m.SID())).Msg("consultation-ended dropped")
		}
	}
	for _, m := range members {
		o.Registry.Leave(m.SID())
		if s, ok := o.sessions[m.SID()]; ok {
			s.state = stateLeft
		}
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("ended_by", endedBy).Int("members", len(members)).Msg("consultation ended")
	return true
}

func participantOf(roomID domain.RoomID, m *domain.Member) protocol.Participant {
	return protocol.Participant{
		RoomID:    roomID,
		SessionID: m.SID,
		UserID:    m.User.ID,
		UserName:  m.User.Username,
		Role:      m.User.Role,
	}
}
