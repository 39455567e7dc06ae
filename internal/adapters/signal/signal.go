package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	PingPeriod time.Duration
	ReadLimit  int64
	SendBuffer int
	// TrustClaimedIdentity accepts the identity sent in join-room when the
	// HTTP session carries none. Debug mode only.
	TrustClaimedIdentity bool
	ChatRateLimit        int
	ChatRateInterval     time.Duration
	CheckOrigin          func(r *http.Request) bool
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	limiter  *ChatRateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 65536
	}
	if opts.ChatRateLimit <= 0 {
		opts.ChatRateLimit = 10
	}
	if opts.ChatRateInterval <= 0 {
		opts.ChatRateInterval = 5 * time.Second
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(r *http.Request) bool { return true }
	}
	return &SignalWSController{
		Orch:     o,
		opts:     opts,
		limiter:  NewChatRateLimiter(opts.ChatRateLimit, opts.ChatRateInterval),
		upgrader: websocket.Upgrader{CheckOrigin: check},
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// wsClient is the per-connection state the handlers see.
type wsClient struct {
	sid      domain.SessionID
	conn     *WsSignalConn
	identity *domain.User
}

// HandleSignal upgrades the request and runs the pumps. identity is the
// verified user from the HTTP session, or nil.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, identity *domain.User) {
	sid := domain.SessionID(uuid.NewString())

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	client := &wsClient{sid: sid, conn: conn, identity: identity}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("authenticated", identity != nil).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(sid, conn, cancel)

	go ctl.writePump(ctx, client)
	go ctl.readPump(ctx, cancel, client)
}
