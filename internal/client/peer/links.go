package peer

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type LinkState int

const (
	LinkNone LinkState = iota
	LinkHandshaking
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNone:
		return "none"
	case LinkHandshaking:
		return "handshaking"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

var errRetriesExhausted = errors.New("retry budget exhausted")

type link struct {
	remote    domain.SessionID
	peer      PeerLink
	state     LinkState
	initiator bool
	attempt   int
	gen       uint64
	remoteSet bool
	queued    []webrtc.ICECandidateInit
	stopTimer func() bool
}

// LinkState reports the state of the link to remote; LinkNone if absent.
func (o *Orchestrator) LinkState(remote domain.SessionID) LinkState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.links[remote]; ok {
		return l.state
	}
	return LinkNone
}

func (o *Orchestrator) outgoingTracksLocked() LocalTracks {
	t := o.local
	if o.sharing && o.screen != nil {
		t.Video = o.screen
	}
	return t
}

// newLinkLocked creates a link in handshaking state and arms its timeout.
func (o *Orchestrator) newLinkLocked(remote domain.SessionID, initiator bool, attempt int) (*link, error) {
	o.gen++
	gen := o.gen
	ev := LinkEvents{
		OnCandidate: func(c webrtc.ICECandidateInit) { o.onLocalCandidate(remote, gen, c) },
		OnConnected: func() { o.onLinkConnected(remote, gen) },
		OnFailed:    func() { o.onLinkFailed(remote, gen, "ice failed") },
		OnTrack: func(tr *webrtc.TrackRemote) {
			o.mu.Lock()
			defer o.mu.Unlock()
			if l, ok := o.links[remote]; ok && l.gen == gen && o.Hooks.RemoteTrack != nil {
				o.Hooks.RemoteTrack(remote, tr)
			}
		},
	}
	pl, err := o.NewLink(remote, o.outgoingTracksLocked(), ev)
	if err != nil {
		return nil, linkErr("create link", remote, err)
	}
	l := &link{
		remote:    remote,
		peer:      pl,
		state:     LinkHandshaking,
		initiator: initiator,
		attempt:   attempt,
		gen:       gen,
	}
	l.stopTimer = o.afterFunc(o.timeout(), func() { o.onLinkFailed(remote, gen, "handshake timeout") })
	o.links[remote] = l
	return l, nil
}

func (o *Orchestrator) initiateLocked(remote domain.SessionID, attempt int) {
	l, err := o.newLinkLocked(remote, true, attempt)
	if err != nil {
		log.Error().Err(err).Str("module", "client.peer").Msg("initiate")
		return
	}
	offer, err := l.peer.CreateOffer()
	if err != nil {
		log.Error().Err(linkErr("create offer", remote, err)).Str("module", "client.peer").Msg("initiate")
		o.closeLinkLocked(remote)
		return
	}
	log.Info().Str("module", "client.peer").Str("remote", string(remote)).Int("attempt", attempt).Msg("offer sent")
	o.sendHandshakeLocked(l, Handshake{SDP: &offer})
}

func (o *Orchestrator) sendHandshakeLocked(l *link, hs Handshake) {
	raw, err := json.Marshal(hs)
	if err != nil {
		log.Error().Err(err).Str("module", "client.peer").Msg("encode handshake")
		return
	}
	typ := protocol.TypeReturnSignal
	if l.initiator {
		typ = protocol.TypeSendSignal
	}
	if err := o.Signal.Send(typ, protocol.Signal{TargetSessionID: l.remote, Payload: raw}); err != nil {
		log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(l.remote)).Msg("handshake send failed")
	}
}

func (o *Orchestrator) onSignalLocked(p protocol.RelayedSignal) {
	if !o.joined {
		return
	}
	var hs Handshake
	if err := json.Unmarshal(p.Signal, &hs); err != nil {
		log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(p.SenderID)).Msg("bad handshake")
		return
	}
	switch {
	case hs.SDP != nil && hs.SDP.Type == webrtc.SDPTypeOffer:
		o.onOfferLocked(p.SenderID, *hs.SDP)
	case hs.SDP != nil && hs.SDP.Type == webrtc.SDPTypeAnswer:
		o.onAnswerLocked(p.SenderID, *hs.SDP)
	case hs.Candidate != nil:
		o.onRemoteCandidateLocked(p.SenderID, *hs.Candidate)
	}
}

func (o *Orchestrator) onOfferLocked(remote domain.SessionID, offer webrtc.SessionDescription) {
	if l, ok := o.links[remote]; ok {
		if l.initiator && l.state == LinkHandshaking && o.self < remote {
			// both sides offered; the lower session id keeps its offer
			log.Info().Str("module", "client.peer").Str("remote", string(remote)).Msg("glare, keeping own offer")
			return
		}
		// a fresh offer on an existing link is a retry from the remote side
		o.closeLinkLocked(remote)
	}
	if _, known := o.peers[remote]; !known {
		o.peers[remote] = &Peer{SessionID: remote, Audio: true, Video: true}
	}
	l, err := o.newLinkLocked(remote, false, 0)
	if err != nil {
		log.Error().Err(err).Str("module", "client.peer").Msg("accept offer")
		return
	}
	answer, err := l.peer.AcceptOffer(offer)
	if err != nil {
		log.Error().Err(linkErr("accept offer", remote, err)).Str("module", "client.peer").Msg("accept offer")
		o.closeLinkLocked(remote)
		return
	}
	o.remoteReadyLocked(l)
	log.Info().Str("module", "client.peer").Str("remote", string(remote)).Msg("answer sent")
	o.sendHandshakeLocked(l, Handshake{SDP: &answer})
}

func (o *Orchestrator) onAnswerLocked(remote domain.SessionID, answer webrtc.SessionDescription) {
	l, ok := o.links[remote]
	if !ok || !l.initiator || l.remoteSet {
		log.Debug().Str("module", "client.peer").Str("remote", string(remote)).Msg("stray answer dropped")
		return
	}
	if err := l.peer.AcceptAnswer(answer); err != nil {
		log.Error().Err(linkErr("accept answer", remote, err)).Str("module", "client.peer").Msg("accept answer")
		o.closeLinkLocked(remote)
		return
	}
	o.remoteReadyLocked(l)
}

// remoteReadyLocked applies candidates that arrived before the remote description.
func (o *Orchestrator) remoteReadyLocked(l *link) {
	l.remoteSet = true
	for _, c := range l.queued {
		if err := l.peer.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(l.remote)).Msg("add candidate")
		}
	}
	l.queued = nil
}

func (o *Orchestrator) onRemoteCandidateLocked(remote domain.SessionID, c webrtc.ICECandidateInit) {
	l, ok := o.links[remote]
	if !ok {
		return
	}
	if !l.remoteSet {
		l.queued = append(l.queued, c)
		return
	}
	if err := l.peer.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(remote)).Msg("add candidate")
	}
}

func (o *Orchestrator) onLocalCandidate(remote domain.SessionID, gen uint64, c webrtc.ICECandidateInit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[remote]
	if !ok || l.gen != gen {
		return
	}
	o.sendHandshakeLocked(l, Handshake{Candidate: &c})
}

func (o *Orchestrator) onLinkConnected(remote domain.SessionID, gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[remote]
	if !ok || l.gen != gen || l.state != LinkHandshaking {
		return
	}
	l.state = LinkConnected
	if l.stopTimer != nil {
		l.stopTimer()
	}
	log.Info().Str("module", "client.peer").Str("remote", string(remote)).Msg("link connected")
}

// onLinkFailed abandons a link. The initiating side retries it as a fresh
// join while the retry budget lasts; the other side waits for a new offer.
func (o *Orchestrator) onLinkFailed(remote domain.SessionID, gen uint64, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[remote]
	if !ok || l.gen != gen {
		return
	}
	if reason == "handshake timeout" && l.state != LinkHandshaking {
		return
	}
	log.Warn().Str("module", "client.peer").Str("remote", string(remote)).Str("reason", reason).Int("attempt", l.attempt).Msg("link abandoned")
	o.closeLinkLocked(remote)

	if !l.initiator || !o.joined {
		return
	}
	if _, present := o.peers[remote]; !present {
		return
	}
	if l.attempt+1 > o.maxRetries() {
		log.Error().Err(linkErr("handshake", remote, errRetriesExhausted)).Str("module", "client.peer").Msg("giving up on peer")
		return
	}
	o.initiateLocked(remote, l.attempt+1)
}

func (o *Orchestrator) closeLinkLocked(remote domain.SessionID) {
	l, ok := o.links[remote]
	if !ok {
		return
	}
	delete(o.links, remote)
	l.state = LinkClosed
	if l.stopTimer != nil {
		l.stopTimer()
	}
	if err := l.peer.Close(); err != nil {
		log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(remote)).Msg("close link")
	}
}
