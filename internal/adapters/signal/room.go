package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, c *wsClient, env protocol.Envelope) {
	var p protocol.JoinRoom
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, codeBadPayload, "join-room")
		return
	}
	user, err := ctl.resolveUser(c, p)
	if err != nil {
		if errors.Is(err, errUnauthenticated) {
			ctl.sendError(c, codeUnauthenticated, err.Error())
			return
		}
		ctl.replyErr(c, err)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(c.sid)).Str("room", string(p.RoomID)).Str("user", string(user.ID)).Msg("join")
	if err := ctl.Orch.Join(ctx, c.sid, p.RoomID, user); err != nil {
		ctl.replyErr(c, err)
	}
}

// handleLeave leaves the room; the socket stays open.
func (ctl *SignalWSController) handleLeave(c *wsClient) {
	log.Info().Str("module", "signal").Str("sid", string(c.sid)).Msg("leave")
	ctl.Orch.Leave(c.sid)
}

func (ctl *SignalWSController) handleEnd(c *wsClient, env protocol.Envelope) {
	var p protocol.RoomRef
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.sendError(c, codeBadPayload, "end-consultation")
		return
	}
	if err := ctl.Orch.EndConsultation(c.sid, p.RoomID); err != nil {
		ctl.replyErr(c, err)
	}
}
