package core

import (
	"github.com/dkeye/Consult/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SessionID     domain.SessionID `json:"sessionId"`
	UserID        domain.UserID    `json:"userId"`
	Username      string           `json:"userName"`
	Role          domain.Role      `json:"role"`
	Audio         bool             `json:"audio"`
	Video         bool             `json:"video"`
	ScreenSharing bool             `json:"screenSharing"`
}

func NewMemberDTO(m *domain.Member) MemberDTO {
	return MemberDTO{
		SessionID:     m.SID,
		UserID:        m.User.ID,
		Username:      m.User.Username,
		Role:          m.User.Role,
		Audio:         m.Audio,
		Video:         m.Video,
		ScreenSharing: m.ScreenSharing,
	}
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	// Members is in insertion order.
	Members() []MemberSession
	MembersSnapshot() []MemberDTO
	Member(sid domain.SessionID) (MemberSession, bool)

	AddMember(ms MemberSession)
	RemoveMember(sid domain.SessionID) (MemberSession, bool)
	// NextSeq returns the next value of the room's event sequence.
	NextSeq() uint64
	Seq() uint64
	// Broadcast sends to every member except from; an empty from reaches everyone.
	Broadcast(from domain.SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}
