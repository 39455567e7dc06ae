package signal

import (
	"encoding/json"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
)

func (ctl *SignalWSController) handleToggle(c *wsClient, env protocol.Envelope) {
	var p protocol.Toggle
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.sendError(c, codeBadPayload, env.Type)
		return
	}
	flag := domain.FlagAudio
	if env.Type == protocol.TypeToggleVideo {
		flag = domain.FlagVideo
	}
	if err := ctl.Orch.SetFlag(c.sid, p.RoomID, flag, p.Enabled); err != nil {
		ctl.replyErr(c, err)
	}
}

func (ctl *SignalWSController) handleScreenShare(c *wsClient, env protocol.Envelope) {
	var p protocol.RoomRef
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.sendError(c, codeBadPayload, env.Type)
		return
	}
	on := env.Type == protocol.TypeStartScreenShare
	if err := ctl.Orch.SetFlag(c.sid, p.RoomID, domain.FlagScreen, on); err != nil {
		ctl.replyErr(c, err)
	}
}
