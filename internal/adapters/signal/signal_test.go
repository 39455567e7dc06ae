package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) (*orch.Orchestrator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	o := orch.New(app.NewRegistry(), app.SimplePolicy{}, app.OpenDirectory{})
	ctl := NewSignalWSController(o, opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c, nil) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return o, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func write(t *testing.T, ws *websocket.Conn, typ string, payload any) {
	t.Helper()
	b, err := protocol.Encode(typ, 0, payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, b))
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		if env.Type == typ {
			return env
		}
	}
}

func join(t *testing.T, ws *websocket.Conn, room, user string) protocol.RoomJoined {
	t.Helper()
	write(t, ws, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: domain.RoomID(room), UserID: domain.UserID(user), UserName: user, Role: domain.RolePatient})
	var rj protocol.RoomJoined
	require.NoError(t, json.Unmarshal(readUntil(t, ws, protocol.TypeRoomJoined).Payload, &rj))
	return rj
}

func TestSignalRoundTrip(t *testing.T) {
	o, url := newTestServer(t, Options{TrustClaimedIdentity: true, PingPeriod: time.Second})
	x := dial(t, url)
	y := dial(t, url)

	xj := join(t, x, "r1", "ux")
	assert.Empty(t, xj.Participants)
	yj := join(t, y, "r1", "uy")
	require.Len(t, yj.Participants, 1)
	assert.Equal(t, xj.SessionID, yj.Participants[0].SessionID)

	var pj protocol.Participant
	require.NoError(t, json.Unmarshal(readUntil(t, x, protocol.TypeParticipantJoined).Payload, &pj))
	assert.Equal(t, yj.SessionID, pj.SessionID)

	write(t, y, protocol.TypeSendSignal, protocol.Signal{TargetSessionID: xj.SessionID, Payload: json.RawMessage(`{"type":"offer","sdp":"v=0"}`)})
	var rs protocol.RelayedSignal
	require.NoError(t, json.Unmarshal(readUntil(t, x, protocol.TypeReceivingSignal).Payload, &rs))
	assert.Equal(t, yj.SessionID, rs.SenderID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(rs.Signal))

	write(t, x, protocol.TypeChatMessage, protocol.ChatSend{RoomID: "r1", Message: "hello"})
	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(readUntil(t, y, protocol.TypeChatMessage).Payload, &msg))
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, xj.SessionID, msg.SenderID)

	write(t, x, protocol.TypePing, nil)
	readUntil(t, x, protocol.TypePong)

	require.NoError(t, y.Close())
	require.NoError(t, json.Unmarshal(readUntil(t, x, protocol.TypeParticipantLeft).Payload, &pj))
	assert.Equal(t, yj.SessionID, pj.SessionID)

	members, ok := o.Registry.ListMembers("r1")
	require.True(t, ok)
	assert.Len(t, members, 1)
}

func TestSignalErrors(t *testing.T) {
	_, url := newTestServer(t, Options{PingPeriod: time.Second})
	ws := dial(t, url)

	write(t, ws, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "r1", UserID: "u", UserName: "u", Role: domain.RoleDoctor})
	var e protocol.Error
	require.NoError(t, json.Unmarshal(readUntil(t, ws, protocol.TypeError).Payload, &e))
	assert.Equal(t, codeUnauthenticated, e.Code)

	write(t, ws, protocol.TypeChatMessage, protocol.ChatSend{RoomID: "r1", Message: "hi"})
	require.NoError(t, json.Unmarshal(readUntil(t, ws, protocol.TypeError).Payload, &e))
	assert.Equal(t, "not_in_room", e.Code)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{")))
	require.NoError(t, json.Unmarshal(readUntil(t, ws, protocol.TypeError).Payload, &e))
	assert.Equal(t, codeBadPayload, e.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	assert.Equal(t, "not_authorized", errorCode(orch.ErrNotAuthorized))
	assert.Equal(t, codeInvalidUser, errorCode(domain.ErrInvalidRole))
	assert.Equal(t, codeInternal, errorCode(context.Canceled))
}
