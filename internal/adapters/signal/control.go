package signal

import "github.com/dkeye/Consult/internal/protocol"

func (ctl *SignalWSController) handlePing(c *wsClient) {
	ctl.send(c, protocol.TypePong, nil)
}
