package orch

import (
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SetFlag records a media flag change and tells the rest of the room.
// Setting a flag to its current value emits nothing.
func (o *Orchestrator) SetFlag(sid domain.SessionID, roomID domain.RoomID, flag domain.MediaFlag, value bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	room, ms, err := o.memberLocked(sid, roomID)
	if err != nil {
		return err
	}
	meta := ms.Meta()
	if !meta.SetFlag(flag, value) {
		return nil
	}
	log.Info().Str("module", "orch.media").Str("sid", string(sid)).Str("flag", string(flag)).Bool("value", value).Msg("flag changed")

	seq := room.NextSeq()
	switch flag {
	case domain.FlagAudio:
		o.broadcastLocked(room, sid, protocol.TypeAudioToggled, seq, protocol.MediaToggled{SessionID: sid, UserID: meta.User.ID, Enabled: value})
	case domain.FlagVideo:
		o.broadcastLocked(room, sid, protocol.TypeVideoToggled, seq, protocol.MediaToggled{SessionID: sid, UserID: meta.User.ID, Enabled: value})
	case domain.FlagScreen:
		typ := protocol.TypeScreenShareStopped
		if value {
			typ = protocol.TypeScreenShareStarted
		}
		o.broadcastLocked(room, sid, typ, seq, protocol.ScreenShare{SessionID: sid, UserID: meta.User.ID})
	}
	return nil
}
