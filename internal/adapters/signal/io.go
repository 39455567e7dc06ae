package signal

import (
	"context"
	"time"

	"github.com/dkeye/Consult/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.opts.PingPeriod * 10 / 9
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsClient) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(c.sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.conn.send:
			_ = c.conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(c.sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns the session: when it returns the session is disconnected.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *wsClient) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(c.sid)).Msg("readPump closing")
		cancel()
		ctl.Orch.Disconnect(c.sid)
		ctl.limiter.Forget(c.sid)
		c.conn.Close()
	}()

	_ = c.conn.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *wsClient, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.sid)).Msg("bad frame")
		ctl.sendError(c, codeBadPayload, err.Error())
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		ctl.handleJoin(ctx, c, env)
	case protocol.TypeLeaveRoom:
		ctl.handleLeave(c)
	case protocol.TypeEndConsultation:
		ctl.handleEnd(c, env)
	case protocol.TypeSendSignal:
		ctl.handleRelay(c, env, false)
	case protocol.TypeReturnSignal:
		ctl.handleRelay(c, env, true)
	case protocol.TypeToggleAudio, protocol.TypeToggleVideo:
		ctl.handleToggle(c, env)
	case protocol.TypeStartScreenShare, protocol.TypeStopScreenShare:
		ctl.handleScreenShare(c, env)
	case protocol.TypeChatMessage:
		ctl.handleChat(c, env)
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, codeUnknownType, env.Type)
	}
}

func (ctl *SignalWSController) send(c *wsClient, typ string, payload any) {
	b, err := protocol.Encode(typ, 0, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := c.conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.sid)).Str("type", typ).Msg("send failed")
	}
}
