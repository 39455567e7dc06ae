package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateJoined
	stateLeft
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateJoined:
		return "joined"
	case stateLeft:
		return "left"
	}
	return "unknown"
}

type session struct {
	conn   core.SignalConnection
	cancel context.CancelFunc
	state  sessionState
}

// Orchestrator drives session lifecycle, relay, media flags and chat.
// Every transition runs under mu, so events for one room are emitted
// in the order they were processed.
type Orchestrator struct {
	Registry  *app.Registry
	Policy    app.Policy
	Directory core.ConsultationDirectory
	Now       func() time.Time

	mu       sync.Mutex
	sessions map[domain.SessionID]*session
}

func New(reg *app.Registry, policy app.Policy, dir core.ConsultationDirectory) *Orchestrator {
	return &Orchestrator{
		Registry:  reg,
		Policy:    policy,
		Directory: dir,
		sessions:  make(map[domain.SessionID]*session),
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Connect registers an open transport that has not joined a room yet.
// cancel stops the adapter pumps when the server forces the session out.
func (o *Orchestrator) Connect(sid domain.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions == nil {
		o.sessions = make(map[domain.SessionID]*session)
	}
	o.sessions[sid] = &session{conn: conn, cancel: cancel, state: stateConnecting}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("connected")
}

// sendLocked delivers one frame to a room member and applies the
// backpressure policy if its queue is full.
func (o *Orchestrator) sendLocked(room core.RoomService, to core.MemberSession, typ string, seq uint64, payload any) bool {
	frame, err := protocol.Encode(typ, seq, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", typ).Msg("encode")
		return false
	}
	if err := to.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(to.SID())).Str("type", typ).Msg("send dropped")
		o.handleDroppedLocked(room, []core.MemberSession{to})
		return false
	}
	return true
}

// broadcastLocked sends to every member of room except from.
func (o *Orchestrator) broadcastLocked(room core.RoomService, from domain.SessionID, typ string, seq uint64, payload any) {
	frame, err := protocol.Encode(typ, seq, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", typ).Msg("encode")
		return
	}
	res := room.Broadcast(from, frame)
	o.handleDroppedLocked(room, res.Dropped)
}

func (o *Orchestrator) handleDroppedLocked(room core.RoomService, dropped []core.MemberSession) {
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			o.kickLocked(slow.SID(), "backpressure")
		case app.DropFrame, app.NoAction:
		}
	}
}

// kickLocked forces a session out: it leaves its room, becomes left and
// its transport is shut down. The adapter's Disconnect follows later.
func (o *Orchestrator) kickLocked(sid domain.SessionID, reason string) {
	s, ok := o.sessions[sid]
	if !ok || s.state == stateLeft {
		return
	}
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("reason", reason).Msg("kick")
	wasJoined := s.state == stateJoined
	s.state = stateLeft
	if wasJoined {
		o.leaveLocked(sid)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.conn.Close()
}

// memberLocked resolves a joined session that belongs to roomID.
func (o *Orchestrator) memberLocked(sid domain.SessionID, roomID domain.RoomID) (core.RoomService, core.MemberSession, error) {
	s, ok := o.sessions[sid]
	if !ok {
		return nil, nil, ErrNotConnected
	}
	if s.state != stateJoined {
		return nil, nil, ErrNotInRoom
	}
	cur, ok := o.Registry.RoomOf(sid)
	if !ok || cur != roomID {
		return nil, nil, ErrNotInRoom
	}
	room, ok := o.Registry.Room(cur)
	if !ok {
		return nil, nil, ErrNotInRoom
	}
	ms, ok := room.Member(sid)
	if !ok {
		return nil, nil, ErrNotInRoom
	}
	return room, ms, nil
}

// State reports the lifecycle state of sid, or "" when unknown.
func (o *Orchestrator) State(sid domain.SessionID) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[sid]; ok {
		return s.state.String()
	}
	return ""
}
