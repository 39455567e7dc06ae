package peer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type ICEConfig struct {
	STUN       []string
	TURN       []string
	Username   string
	Credential string
	ForceRelay bool
}

func DefaultICEConfig() ICEConfig {
	return ICEConfig{STUN: []string{"stun:stun.l.google.com:19302"}}
}

func (c ICEConfig) Configuration() webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(c.STUN) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUN})
	}
	if len(c.TURN) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURN,
			Username:   c.Username,
			Credential: c.Credential,
		})
	}
	policy := webrtc.ICETransportPolicyAll
	if c.ForceRelay && len(c.TURN) > 0 {
		policy = webrtc.ICETransportPolicyRelay
	}
	return webrtc.Configuration{ICEServers: servers, ICETransportPolicy: policy}
}

// pionLink is a PeerLink over a pion PeerConnection.
type pionLink struct {
	pc     *webrtc.PeerConnection
	remote domain.SessionID
	video  *webrtc.RTPSender
	cancel context.CancelFunc
}

// NewPionFactory builds links that share one ICE configuration.
func NewPionFactory(cfg webrtc.Configuration) LinkFactory {
	return func(remote domain.SessionID, tracks LocalTracks, ev LinkEvents) (PeerLink, error) {
		return newPionLink(cfg, remote, tracks, ev)
	}
}

func newPionLink(cfg webrtc.Configuration, remote domain.SessionID, tracks LocalTracks, ev LinkEvents) (*pionLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &pionLink{pc: pc, remote: remote, cancel: cancel}

	if tracks.Audio != nil {
		sender, err := pc.AddTrack(tracks.Audio)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("add audio track: %w", err)
		}
		go drainRTCP(ctx, sender)
	}
	if tracks.Video != nil {
		sender, err := pc.AddTrack(tracks.Video)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("add video track: %w", err)
		}
		l.video = sender
		go drainRTCP(ctx, sender)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil && ev.OnCandidate != nil {
			go ev.OnCandidate(c.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "client.webrtc").Str("remote", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if ev.OnConnected != nil {
				go ev.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed:
			if ev.OnFailed != nil {
				go ev.OnFailed()
			}
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "client.webrtc").
			Str("remote", string(remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		if ev.OnTrack != nil {
			go ev.OnTrack(track)
		}
	})
	return l, nil
}

// drainRTCP keeps interceptors running; pion needs RTCP to be read.
func drainRTCP(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (l *pionLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

func (l *pionLink) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

func (l *pionLink) AcceptAnswer(answer webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (l *pionLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(c)
}

func (l *pionLink) ReplaceVideo(track webrtc.TrackLocal) error {
	if l.video == nil {
		return errors.New("link has no video sender")
	}
	return l.video.ReplaceTrack(track)
}

func (l *pionLink) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "client.webrtc").Str("remote", string(l.remote)).Msg("close error")
		return err
	}
	log.Info().Str("module", "client.webrtc").Str("remote", string(l.remote)).Msg("closed")
	return nil
}
