package signal

import (
	"encoding/json"

	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleRelay never reports a routing miss back to the sender.
func (ctl *SignalWSController) handleRelay(c *wsClient, env protocol.Envelope, reply bool) {
	var p protocol.Signal
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.TargetSessionID == "" || len(p.Payload) == 0 {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.sid)).Str("type", env.Type).Msg("bad signal payload")
		ctl.sendError(c, codeBadPayload, env.Type)
		return
	}
	kind := orch.RelaySignal
	if reply {
		kind = orch.RelayReturn
	}
	ctl.Orch.Relay(c.sid, p.TargetSessionID, kind, p.Payload)
}
