package media

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendRTP(t *testing.T, to net.Addr, seq uint16) {
	t.Helper()
	conn, err := net.Dial("udp", to.String())
	require.NoError(t, err)
	defer conn.Close()
	pkt := rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, SSRC: 1}, Payload: []byte{1, 2, 3}}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)
}

func TestRTPSourcePumpsPackets(t *testing.T) {
	src := NewRTPSource(Config{AudioAddr: "127.0.0.1:0", VideoAddr: "127.0.0.1:0"})
	tracks, err := src.Open(context.Background())
	require.NoError(t, err)
	defer src.Close()
	require.NotNil(t, tracks.Audio)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks.Video.Kind())

	addr, ok := src.Addr("audio")
	require.True(t, ok)
	sendRTP(t, addr, 1)
	require.Eventually(t, func() bool { return src.packets("audio") == 1 }, 2*time.Second, 10*time.Millisecond)

	src.SetEnabled(webrtc.RTPCodecTypeAudio, false)
	sendRTP(t, addr, 2)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, uint64(1), src.packets("audio"))
}

func TestRTPSourceFailures(t *testing.T) {
	src := NewRTPSource(Config{AudioAddr: "127.0.0.1:0", VideoAddr: "not-an-addr"})
	_, err := src.Open(context.Background())
	assert.Error(t, err)

	ok := NewRTPSource(Config{AudioAddr: "127.0.0.1:0", VideoAddr: "127.0.0.1:0"})
	_, err = ok.Open(context.Background())
	require.NoError(t, err)
	defer ok.Close()
	_, err = ok.OpenScreen(context.Background())
	assert.ErrorIs(t, err, ErrNoScreenSource)
}
