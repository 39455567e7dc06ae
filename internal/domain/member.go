package domain

// SessionID identifies one transport connection, not a user.
// A user who reconnects gets a new SessionID.
type SessionID string

type MediaFlag string

const (
	FlagAudio  MediaFlag = "audio"
	FlagVideo  MediaFlag = "video"
	FlagScreen MediaFlag = "screen"
)

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	SID           SessionID
	User          *User
	Audio         bool
	Video         bool
	ScreenSharing bool
}

// NewMember starts with camera and microphone on, screen share off.
func NewMember(sid SessionID, user *User) *Member {
	return &Member{SID: sid, User: user, Audio: true, Video: true}
}

// SetFlag reports whether the value actually changed.
func (m *Member) SetFlag(flag MediaFlag, value bool) bool {
	var p *bool
	switch flag {
	case FlagAudio:
		p = &m.Audio
	case FlagVideo:
		p = &m.Video
	case FlagScreen:
		p = &m.ScreenSharing
	default:
		return false
	}
	if *p == value {
		return false
	}
	*p = value
	return true
}
