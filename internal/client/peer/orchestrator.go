package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultMaxRetries       = 3
)

type Orchestrator struct {
	Signal  Signaler
	Media   MediaSource
	NewLink LinkFactory
	Hooks   Hooks

	HandshakeTimeout time.Duration
	MaxRetries       int
	// AfterFunc schedules handshake timeouts; it returns a stop function.
	AfterFunc func(d time.Duration, f func()) func() bool

	mu        sync.Mutex
	roomID    domain.RoomID
	self      domain.SessionID
	joined    bool
	joinedSeq uint64
	local     LocalTracks
	hasMedia  bool
	screen    webrtc.TrackLocal
	sharing   bool
	peers     map[domain.SessionID]*Peer
	links     map[domain.SessionID]*link
	gen       uint64
}

func (o *Orchestrator) init() {
	if o.peers == nil {
		o.peers = make(map[domain.SessionID]*Peer)
	}
	if o.links == nil {
		o.links = make(map[domain.SessionID]*link)
	}
}

func (o *Orchestrator) timeout() time.Duration {
	if o.HandshakeTimeout > 0 {
		return o.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

func (o *Orchestrator) maxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return DefaultMaxRetries
}

func (o *Orchestrator) afterFunc(d time.Duration, f func()) func() bool {
	if o.AfterFunc != nil {
		return o.AfterFunc(d, f)
	}
	return time.AfterFunc(d, f).Stop
}

// Start acquires local media and only then asks to join. A media failure
// leaves the client outside the room.
func (o *Orchestrator) Start(ctx context.Context, join protocol.JoinRoom) error {
	tracks, err := o.Media.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	o.mu.Lock()
	o.init()
	o.local = tracks
	o.hasMedia = true
	o.roomID = join.RoomID
	o.mu.Unlock()

	if err := o.Signal.Send(protocol.TypeJoinRoom, join); err != nil {
		return fmt.Errorf("send join-room: %w", err)
	}
	log.Info().Str("module", "client.peer").Str("room", string(join.RoomID)).Msg("join requested")
	return nil
}

// Run feeds server events into the orchestrator until ctx ends or the
// channel closes.
func (o *Orchestrator) Run(ctx context.Context, incoming <-chan protocol.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-incoming:
			if !ok {
				o.mu.Lock()
				o.closeAllLocked()
				o.joined = false
				o.mu.Unlock()
				return ErrSignalingClosed
			}
			o.Handle(env)
		}
	}
}

func (o *Orchestrator) Handle(env protocol.Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.init()

	switch env.Type {
	case protocol.TypeRoomJoined:
		var p protocol.RoomJoined
		if decode(env, &p) {
			o.onRoomJoinedLocked(env.Seq, p)
		}
	case protocol.TypeParticipantJoined:
		var p protocol.Participant
		if decode(env, &p) {
			o.onParticipantJoinedLocked(env.Seq, p)
		}
	case protocol.TypeParticipantLeft:
		var p protocol.Participant
		if decode(env, &p) {
			o.onParticipantLeftLocked(p.SessionID)
		}
	case protocol.TypeReceivingSignal, protocol.TypeReceivingReturnedSignal:
		var p protocol.RelayedSignal
		if decode(env, &p) {
			o.onSignalLocked(p)
		}
	case protocol.TypeAudioToggled, protocol.TypeVideoToggled:
		var p protocol.MediaToggled
		if decode(env, &p) {
			flag := domain.FlagAudio
			if env.Type == protocol.TypeVideoToggled {
				flag = domain.FlagVideo
			}
			o.onMediaLocked(p.SessionID, flag, p.Enabled)
		}
	case protocol.TypeScreenShareStarted, protocol.TypeScreenShareStopped:
		var p protocol.ScreenShare
		if decode(env, &p) {
			o.onMediaLocked(p.SessionID, domain.FlagScreen, env.Type == protocol.TypeScreenShareStarted)
		}
	case protocol.TypeChatMessage:
		var m domain.ChatMessage
		if decode(env, &m) && o.Hooks.Chat != nil {
			o.Hooks.Chat(m)
		}
	case protocol.TypeConsultationEnded:
		var p protocol.ConsultationEnded
		decode(env, &p)
		log.Info().Str("module", "client.peer").Str("ended_by", p.EndedBy).Msg("consultation ended")
		o.leaveLocked()
		if o.Hooks.Ended != nil {
			o.Hooks.Ended(p.EndedBy)
		}
	case protocol.TypeLeft:
		o.leaveLocked()
	case protocol.TypeError:
		var p protocol.Error
		if decode(env, &p) {
			log.Warn().Str("module", "client.peer").Str("code", p.Code).Str("message", p.Message).Msg("server error")
			if o.Hooks.Error != nil {
				o.Hooks.Error(p)
			}
		}
	case protocol.TypePong:
	default:
		log.Debug().Str("module", "client.peer").Str("type", env.Type).Msg("unhandled event")
	}
}

func decode(env protocol.Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		log.Warn().Err(err).Str("module", "client.peer").Str("type", env.Type).Msg("bad payload")
		return false
	}
	return true
}

// onRoomJoinedLocked makes this client the initiator toward every member
// that was already in the room.
func (o *Orchestrator) onRoomJoinedLocked(seq uint64, p protocol.RoomJoined) {
	if o.joined {
		log.Warn().Str("module", "client.peer").Msg("duplicate room-joined ignored")
		return
	}
	o.joined = true
	o.joinedSeq = seq
	o.self = p.SessionID
	o.roomID = p.RoomID
	log.Info().Str("module", "client.peer").Str("sid", string(p.SessionID)).Str("room", string(p.RoomID)).Int("peers", len(p.Participants)).Uint64("seq", seq).Msg("joined")

	for _, m := range p.Participants {
		peer := peerFromDTO(m)
		o.peers[m.SessionID] = &peer
		if o.Hooks.PeerJoined != nil {
			o.Hooks.PeerJoined(peer)
		}
		o.initiateLocked(m.SessionID, 0)
	}
}

// onParticipantJoinedLocked only records the newcomer: it is the one that
// initiates. Events already covered by the room-joined snapshot are dropped.
func (o *Orchestrator) onParticipantJoinedLocked(seq uint64, p protocol.Participant) {
	if !o.joined || seq <= o.joinedSeq || p.SessionID == o.self {
		return
	}
	if _, linked := o.links[p.SessionID]; linked {
		return
	}
	if _, known := o.peers[p.SessionID]; known {
		return
	}
	peer := Peer{SessionID: p.SessionID, UserID: p.UserID, UserName: p.UserName, Role: p.Role, Audio: true, Video: true}
	o.peers[p.SessionID] = &peer
	log.Info().Str("module", "client.peer").Str("remote", string(p.SessionID)).Msg("peer joined, awaiting offer")
	if o.Hooks.PeerJoined != nil {
		o.Hooks.PeerJoined(peer)
	}
}

func (o *Orchestrator) onParticipantLeftLocked(sid domain.SessionID) {
	_, known := o.peers[sid]
	delete(o.peers, sid)
	o.closeLinkLocked(sid)
	if known && o.Hooks.PeerLeft != nil {
		o.Hooks.PeerLeft(sid)
	}
}

func (o *Orchestrator) onMediaLocked(sid domain.SessionID, flag domain.MediaFlag, value bool) {
	if p, ok := o.peers[sid]; ok {
		switch flag {
		case domain.FlagAudio:
			p.Audio = value
		case domain.FlagVideo:
			p.Video = value
		case domain.FlagScreen:
			p.ScreenSharing = value
		}
	}
	if o.Hooks.MediaChanged != nil {
		o.Hooks.MediaChanged(sid, flag, value)
	}
}

// leaveLocked drops all links and room state but keeps local media.
func (o *Orchestrator) leaveLocked() {
	o.closeAllLocked()
	o.peers = make(map[domain.SessionID]*Peer)
	o.joined = false
	o.joinedSeq = 0
}

func (o *Orchestrator) closeAllLocked() {
	for sid := range o.links {
		o.closeLinkLocked(sid)
	}
}

// Peers returns a copy of the known room members.
func (o *Orchestrator) Peers() []Peer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Peer, 0, len(o.peers))
	for _, p := range o.peers {
		out = append(out, *p)
	}
	return out
}

func (o *Orchestrator) SessionID() domain.SessionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.self
}

// Close tears down every link and releases local capture.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.leaveLocked()
	o.releaseMediaLocked()
}

func (o *Orchestrator) releaseMediaLocked() {
	if o.sharing {
		o.Media.CloseScreen()
		o.sharing = false
		o.screen = nil
	}
	if o.hasMedia {
		o.Media.Close()
		o.hasMedia = false
		o.local = LocalTracks{}
	}
}

func peerFromDTO(m core.MemberDTO) Peer {
	return Peer{
		SessionID:     m.SessionID,
		UserID:        m.UserID,
		UserName:      m.Username,
		Role:          m.Role,
		Audio:         m.Audio,
		Video:         m.Video,
		ScreenSharing: m.ScreenSharing,
	}
}
