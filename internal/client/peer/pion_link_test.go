package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICEConfiguration(t *testing.T) {
	cfg := DefaultICEConfig().Configuration()
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, webrtc.ICETransportPolicyAll, cfg.ICETransportPolicy)

	// relay-only without a TURN server would never connect
	cfg = ICEConfig{ForceRelay: true}.Configuration()
	assert.Empty(t, cfg.ICEServers)
	assert.Equal(t, webrtc.ICETransportPolicyAll, cfg.ICETransportPolicy)

	cfg = ICEConfig{
		STUN:       []string{"stun:stun.example:3478"},
		TURN:       []string{"turn:turn.example:3478"},
		Username:   "u",
		Credential: "p",
		ForceRelay: true,
	}.Configuration()
	require.Len(t, cfg.ICEServers, 2)
	assert.Equal(t, "u", cfg.ICEServers[1].Username)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, cfg.ICETransportPolicy)
}

func localTracks(t *testing.T, stream string) LocalTracks {
	t.Helper()
	audio, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", stream)
	require.NoError(t, err)
	video, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "camera", stream)
	require.NoError(t, err)
	return LocalTracks{Audio: audio, Video: video}
}

func connectedSignal() (LinkEvents, <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	return LinkEvents{OnConnected: func() { once.Do(func() { close(ch) }) }}, ch
}

func waitConnected(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(15 * time.Second):
		t.Fatal("link did not connect")
	}
}

func TestPionLinkLoopbackReplaceVideo(t *testing.T) {
	evA, connA := connectedSignal()
	evB, connB := connectedSignal()

	a, err := newPionLink(webrtc.Configuration{}, "b", localTracks(t, "a"), evA)
	require.NoError(t, err)
	defer a.Close()
	b, err := newPionLink(webrtc.Configuration{}, "a", localTracks(t, "b"), evB)
	require.NoError(t, err)
	defer b.Close()

	// non-trickle exchange: wait for full gathering and ship the final SDP
	_, err = a.CreateOffer()
	require.NoError(t, err)
	<-webrtc.GatheringCompletePromise(a.pc)

	_, err = b.AcceptOffer(*a.pc.LocalDescription())
	require.NoError(t, err)
	<-webrtc.GatheringCompletePromise(b.pc)

	require.NoError(t, a.AcceptAnswer(*b.pc.LocalDescription()))

	waitConnected(t, connA)
	waitConnected(t, connB)

	screen, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "screen", "a")
	require.NoError(t, err)
	require.NoError(t, a.ReplaceVideo(screen))
	assert.Same(t, webrtc.TrackLocal(screen), a.video.Track())
	assert.Equal(t, webrtc.PeerConnectionStateConnected, a.pc.ConnectionState())

	camera := localTracks(t, "a").Video
	require.NoError(t, a.ReplaceVideo(camera))
	assert.Equal(t, webrtc.PeerConnectionStateConnected, a.pc.ConnectionState())
}

func TestPionLinkWithoutVideo(t *testing.T) {
	l, err := NewPionFactory(webrtc.Configuration{})("x", LocalTracks{}, LinkEvents{})
	require.NoError(t, err)
	defer l.Close()

	screen, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "screen", "x")
	require.NoError(t, err)
	assert.Error(t, l.ReplaceVideo(screen))
}
