package signal

import (
	"encoding/json"

	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleChat(c *wsClient, env protocol.Envelope) {
	var p protocol.ChatSend
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.sendError(c, codeBadPayload, env.Type)
		return
	}
	if !ctl.limiter.Allow(c.sid) {
		log.Warn().Str("module", "signal").Str("sid", string(c.sid)).Msg("chat rate limited")
		ctl.sendError(c, codeRateLimited, "too many messages")
		return
	}
	if _, err := ctl.Orch.SendChat(c.sid, p.RoomID, p.Message); err != nil {
		ctl.replyErr(c, err)
	}
}
