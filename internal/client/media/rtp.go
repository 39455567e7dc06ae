// Package media feeds locally captured media into WebRTC tracks. Capture
// itself runs out of process (e.g. gstreamer) and sends RTP over UDP.
package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Consult/internal/client/peer"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoScreenSource = errors.New("no screen source configured")

type Config struct {
	AudioAddr  string
	VideoAddr  string
	ScreenAddr string
	MTU        int
}

// pump listens on one UDP address and writes RTP into one track.
type pump struct {
	tag     string
	conn    *net.UDPConn
	track   *webrtc.TrackLocalStaticRTP
	enabled atomic.Bool
	packets atomic.Uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

func openPump(ctx context.Context, addr, tag string, codec webrtc.RTPCodecCapability, mtu int) (*pump, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %s: %w", tag, addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", tag, addr, err)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(codec, tag, "consult")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s track: %w", tag, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &pump{tag: tag, conn: conn, track: track, cancel: cancel, done: make(chan struct{})}
	p.enabled.Store(true)
	go p.run(ctx, mtu)
	return p, nil
}

func (p *pump) run(ctx context.Context, mtu int) {
	defer close(p.done)
	defer p.conn.Close()

	buf := make([]byte, mtu)
	for {
		// keep the read unblocked with a short timeout
		_ = p.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					log.Info().Str("module", "client.media").Str("tag", p.tag).Msg("pump shutting down")
					return
				}
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Str("module", "client.media").Str("tag", p.tag).Msg("UDP read error")
			}
			return
		}
		if !p.enabled.Load() {
			continue
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			// ignore non-RTP
			continue
		}
		p.packets.Add(1)
		if err := p.track.WriteRTP(&pkt); err != nil {
			log.Error().Err(err).Str("module", "client.media").Str("tag", p.tag).Msg("write to track")
			return
		}
	}
}

func (p *pump) Close() {
	p.cancel()
	_ = p.conn.Close()
	<-p.done
}

// RTPSource is a peer.MediaSource backed by RTP-over-UDP pumps.
type RTPSource struct {
	cfg Config

	mu     sync.Mutex
	audio  *pump
	video  *pump
	screen *pump
}

func NewRTPSource(cfg Config) *RTPSource {
	if cfg.MTU <= 0 {
		cfg.MTU = 1500
	}
	return &RTPSource{cfg: cfg}
}

func (s *RTPSource) Open(ctx context.Context) (peer.LocalTracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil {
		return peer.LocalTracks{Audio: s.audio.track, Video: s.video.track}, nil
	}
	audio, err := openPump(ctx, s.cfg.AudioAddr, "audio", webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, s.cfg.MTU)
	if err != nil {
		return peer.LocalTracks{}, err
	}
	video, err := openPump(ctx, s.cfg.VideoAddr, "camera", webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, s.cfg.MTU)
	if err != nil {
		audio.Close()
		return peer.LocalTracks{}, err
	}
	s.audio, s.video = audio, video
	log.Info().Str("module", "client.media").Str("audio", audio.conn.LocalAddr().String()).Str("video", video.conn.LocalAddr().String()).Msg("capture open")
	return peer.LocalTracks{Audio: audio.track, Video: video.track}, nil
}

func (s *RTPSource) OpenScreen(ctx context.Context) (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.ScreenAddr == "" {
		return nil, ErrNoScreenSource
	}
	if s.screen != nil {
		return s.screen.track, nil
	}
	p, err := openPump(ctx, s.cfg.ScreenAddr, "screen", webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, s.cfg.MTU)
	if err != nil {
		return nil, err
	}
	s.screen = p
	return p.track, nil
}

func (s *RTPSource) CloseScreen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen != nil {
		s.screen.Close()
		s.screen = nil
	}
}

// SetEnabled drops incoming packets of kind while disabled.
func (s *RTPSource) SetEnabled(kind webrtc.RTPCodecType, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		if s.audio != nil {
			s.audio.enabled.Store(enabled)
		}
	case webrtc.RTPCodecTypeVideo:
		if s.video != nil {
			s.video.enabled.Store(enabled)
		}
	}
}

// Addr returns the bound address of a pump, for wiring the capture side.
func (s *RTPSource) Addr(tag string) (net.Addr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p *pump
	switch tag {
	case "audio":
		p = s.audio
	case "camera":
		p = s.video
	case "screen":
		p = s.screen
	}
	if p == nil {
		return nil, false
	}
	return p.conn.LocalAddr(), true
}

func (s *RTPSource) packets(tag string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tag {
	case "audio":
		if s.audio != nil {
			return s.audio.packets.Load()
		}
	case "camera":
		if s.video != nil {
			return s.video.packets.Load()
		}
	}
	return 0
}

func (s *RTPSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []*pump{s.audio, s.video, s.screen} {
		if p != nil {
			p.Close()
		}
	}
	s.audio, s.video, s.screen = nil, nil, nil
}

var _ peer.MediaSource = (*RTPSource)(nil)
