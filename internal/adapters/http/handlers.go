package http

import (
	"net/http"

	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	ctxIdentity = "identity"

	sessUserID   = "user_id"
	sessUserName = "user_name"
	sessRole     = "role"
)

type handlers struct {
	orch *orch.Orchestrator
}

type SessionRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

// identityFrom returns the user stored in the cookie session, or nil.
func identityFrom(c *gin.Context) *domain.User {
	s := sessions.Default(c)
	id, _ := s.Get(sessUserID).(string)
	name, _ := s.Get(sessUserName).(string)
	role, _ := s.Get(sessRole).(string)
	if id == "" {
		return nil
	}
	u, err := domain.NewUser(domain.UserID(id), name, domain.Role(role))
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("stale session identity")
		return nil
	}
	return u
}

// createSession records a verified identity. Verification itself belongs
// to the external authentication service in front of this endpoint.
func (h *handlers) createSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := domain.NewUser(domain.UserID(req.UserID), req.UserName, role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := sessions.Default(c)
	s.Set(sessUserID, string(u.ID))
	s.Set(sessUserName, u.Username)
	s.Set(sessRole, string(u.Role))
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handlers) getSession(c *gin.Context) {
	u := identityFrom(c)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handlers) deleteSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	_ = s.Save()
	c.Status(http.StatusNoContent)
}

// requireRoomAccess admits only a session identity the consultation
// directory allows into :roomID.
func (h *handlers) requireRoomAccess(c *gin.Context) {
	u := identityFrom(c)
	if u == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	roomID := domain.RoomID(c.Param("roomID"))
	if h.orch.Directory != nil {
		if err := h.orch.Directory.Authorize(c.Request.Context(), roomID, u); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Str("user", string(u.ID)).Msg("room access denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not part of this consultation"})
			return
		}
	}
	c.Set(ctxIdentity, u)
	c.Next()
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Registry.List()})
}

func (h *handlers) listMembers(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomID"))
	room, ok := h.orch.Registry.Room(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	members := room.MembersSnapshot()
	if members == nil {
		members = []core.MemberDTO{}
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "members": members})
}

func (h *handlers) endRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomID"))
	u := c.MustGet(ctxIdentity).(*domain.User)
	if !h.orch.EndRoom(roomID, string(u.ID)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
