package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func setup(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	return setupWith(t, app.OpenDirectory{})
}

func setupWith(t *testing.T, dir core.ConsultationDirectory) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:           "test",
		StaticPath:     t.TempDir(),
		PingPeriod:     time.Second,
		Secret:         "test-secret",
		SendBuffer:     8,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
	o := orch.New(app.NewRegistry(), app.SimplePolicy{}, dir)
	return SetupRouter(context.Background(), cfg, o), o
}

func do(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r http.Handler, userID, role string) *http.Cookie {
	t.Helper()
	w := do(r, http.MethodPost, "/api/session", `{"userId":"`+userID+`","userName":"`+userID+`","role":"`+role+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == "ConsultSessions" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestHealthz(t *testing.T) {
	r, _ := setup(t)
	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	r, _ := setup(t)

	w := do(r, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/session", `{"userId":"doc-1","userName":" Dr. Who ","role":"Doctor"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var u domain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, domain.RoleDoctor, u.Role)
	assert.Equal(t, "Dr. Who", u.Username)

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "ConsultSessions" {
			session = c
		}
	}
	require.NotNil(t, session)

	w = do(r, http.MethodGet, "/api/session", "", session)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"doc-1"`)

	w = do(r, http.MethodPost, "/api/session", `{"userId":"x","userName":"x","role":"nurse"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomsEndpoints(t *testing.T) {
	r, o := setup(t)
	o.Connect("s1", nopConn{}, func() {})
	require.NoError(t, o.Join(context.Background(), "s1", "appt-9", &domain.User{ID: "p", Username: "Pat", Role: domain.RolePatient}))
	doc := login(t, r, "doc-1", "doctor")

	w := do(r, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":[{"id":"appt-9","memberCount":1}]}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/rooms/appt-9/members", "", doc)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userName":"Pat"`)

	w = do(r, http.MethodGet, "/api/rooms/none/members", "", doc)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/api/rooms/appt-9", "", doc)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "left", o.State("s1"))

	w = do(r, http.MethodDelete, "/api/rooms/appt-9", "", doc)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomEndpointsRequireIdentity(t *testing.T) {
	r, o := setup(t)
	o.Connect("s1", nopConn{}, func() {})
	require.NoError(t, o.Join(context.Background(), "s1", "appt-9", &domain.User{ID: "p", Username: "Pat", Role: domain.RolePatient}))

	w := do(r, http.MethodGet, "/api/rooms/appt-9/members", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodDelete, "/api/rooms/appt-9", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "joined", o.State("s1"))
}

func TestRoomEndpointsConsultDirectory(t *testing.T) {
	r, o := setupWith(t, app.NewStaticDirectory(map[string][]string{"appt-9": {"p", "doc-1"}}))
	o.Connect("s1", nopConn{}, func() {})
	require.NoError(t, o.Join(context.Background(), "s1", "appt-9", &domain.User{ID: "p", Username: "Pat", Role: domain.RolePatient}))

	stranger := login(t, r, "doc-2", "doctor")
	w := do(r, http.MethodGet, "/api/rooms/appt-9/members", "", stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(r, http.MethodDelete, "/api/rooms/appt-9", "", stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "joined", o.State("s1"))

	doc := login(t, r, "doc-1", "doctor")
	w = do(r, http.MethodDelete, "/api/rooms/appt-9", "", doc)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "left", o.State("s1"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://clinic.example"})
	req := httptest.NewRequest(http.MethodGet, "/api/ws/signal", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
	req.Header.Set("Origin", "https://clinic.example")
	assert.True(t, check(req))
	assert.True(t, originChecker([]string{"*"})(req))
}
