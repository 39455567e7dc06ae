// Package peer runs the participant side of a consultation: one local
// capture, one WebRTC link per remote session, and the handshake traffic
// between them.
package peer

import (
	"context"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// Handshake is the signal payload exchanged between two clients. The
// server relays it without looking inside.
type Handshake struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// LocalTracks is the outgoing media attached to every link.
type LocalTracks struct {
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal
}

// PeerLink is one media connection to one remote session.
type PeerLink interface {
	CreateOffer() (webrtc.SessionDescription, error)
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AcceptAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	// ReplaceVideo swaps the outgoing video source without renegotiation.
	ReplaceVideo(track webrtc.TrackLocal) error
	Close() error
}

// LinkEvents are delivered asynchronously, never from inside a PeerLink call.
type LinkEvents struct {
	OnCandidate func(webrtc.ICECandidateInit)
	OnConnected func()
	OnFailed    func()
	OnTrack     func(*webrtc.TrackRemote)
}

type LinkFactory func(remote domain.SessionID, tracks LocalTracks, ev LinkEvents) (PeerLink, error)

// MediaSource owns local capture. Open and OpenScreen may block on the
// user or the OS granting access.
type MediaSource interface {
	Open(ctx context.Context) (LocalTracks, error)
	OpenScreen(ctx context.Context) (webrtc.TrackLocal, error)
	CloseScreen()
	SetEnabled(kind webrtc.RTPCodecType, enabled bool)
	Close()
}

// Signaler sends client events to the server. Send must not block.
type Signaler interface {
	Send(typ string, payload any) error
}

// Peer is what this client knows about another member of the room.
type Peer struct {
	SessionID     domain.SessionID
	UserID        domain.UserID
	UserName      string
	Role          domain.Role
	Audio         bool
	Video         bool
	ScreenSharing bool
}

// Hooks let the UI render room state. All are optional and are called
// with the orchestrator lock held, so they must not call back into it.
type Hooks struct {
	PeerJoined   func(Peer)
	PeerLeft     func(domain.SessionID)
	RemoteTrack  func(domain.SessionID, *webrtc.TrackRemote)
	MediaChanged func(domain.SessionID, domain.MediaFlag, bool)
	Chat         func(domain.ChatMessage)
	Ended        func(endedBy string)
	Error        func(protocol.Error)
}
