package orch

import (
	"encoding/json"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

type RelayKind int

const (
	// RelaySignal forwards an initiator's handshake payload.
	RelaySignal RelayKind = iota
	// RelayReturn forwards the receiver's reply.
	RelayReturn
)

func (k RelayKind) eventType() string {
	if k == RelayReturn {
		return protocol.TypeReceivingReturnedSignal
	}
	return protocol.TypeReceivingSignal
}

// Relay forwards payload unchanged to target, which must be in the sender's
// room. Misses are dropped and logged; the sender never sees an error.
func (o *Orchestrator) Relay(sid, target domain.SessionID, kind RelayKind, payload json.RawMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	drop := func(reason string) bool {
		log.Info().Str("module", "orch.relay").Str("sid", string(sid)).Str("target", string(target)).Str("reason", reason).Msg("signal dropped")
		return false
	}

	if s, ok := o.sessions[sid]; !ok || s.state != stateJoined {
		return drop("sender not joined")
	}
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return drop("sender not in room")
	}
	targetRoom, ok := o.Registry.RoomOf(target)
	if !ok {
		return drop("target gone")
	}
	if targetRoom != roomID {
		return drop("target in another room")
	}
	room, ok := o.Registry.Room(roomID)
	if !ok {
		return drop("room gone")
	}
	to, ok := room.Member(target)
	if !ok {
		return drop("target gone")
	}
	return o.sendLocked(room, to, kind.eventType(), 0, protocol.RelayedSignal{Signal: payload, SenderID: sid})
}
