package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dkeye/Consult/internal/client/media"
	"github.com/dkeye/Consult/internal/client/peer"
	sigclient "github.com/dkeye/Consult/internal/client/signal"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newJoinCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a consultation room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, v, domain.RoomID(args[0]))
		},
	}
	f := cmd.Flags()
	f.String("server", "ws://localhost:8080/api/ws/signal", "signaling websocket URL")
	f.String("session-cookie", "", "ConsultSessions cookie from /api/session")
	f.String("user", "", "user id (trusted only by debug servers)")
	f.String("name", "", "display name")
	f.String("role", "patient", "doctor or patient")
	f.StringSlice("stun", peer.DefaultICEConfig().STUN, "STUN server URLs")
	f.StringSlice("turn", nil, "TURN server URLs")
	f.String("turn-user", "", "TURN username")
	f.String("turn-pass", "", "TURN credential")
	f.Bool("force-relay", false, "only use TURN relay candidates")
	f.String("audio-addr", "127.0.0.1:5006", "UDP address receiving Opus RTP")
	f.String("video-addr", "127.0.0.1:5004", "UDP address receiving VP8 RTP")
	f.String("screen-addr", "", "UDP address receiving screen VP8 RTP")
	f.Duration("handshake-timeout", peer.DefaultHandshakeTimeout, "give up on a peer link after this long")
	f.Int("retries", peer.DefaultMaxRetries, "re-offer attempts per peer")
	_ = v.BindPFlags(f)
	return cmd
}

func runJoin(cmd *cobra.Command, v *viper.Viper, roomID domain.RoomID) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	role, err := domain.ParseRole(v.GetString("role"))
	if err != nil {
		return err
	}

	header := http.Header{}
	if c := v.GetString("session-cookie"); c != "" {
		header.Set("Cookie", "ConsultSessions="+c)
	}
	client := sigclient.NewClient()
	if err := client.Connect(ctx, v.GetString("server"), header); err != nil {
		return err
	}
	defer client.Close()

	ice := peer.DefaultICEConfig()
	if stun := v.GetStringSlice("stun"); len(stun) > 0 {
		ice.STUN = stun
	}
	ice.TURN = v.GetStringSlice("turn")
	ice.Username = v.GetString("turn-user")
	ice.Credential = v.GetString("turn-pass")
	ice.ForceRelay = v.GetBool("force-relay")
	out := cmd.OutOrStdout()
	o := &peer.Orchestrator{
		Signal: client,
		Media: media.NewRTPSource(media.Config{
			AudioAddr:  v.GetString("audio-addr"),
			VideoAddr:  v.GetString("video-addr"),
			ScreenAddr: v.GetString("screen-addr"),
		}),
		NewLink:          peer.NewPionFactory(ice.Configuration()),
		Hooks:            printHooks(out),
		HandshakeTimeout: v.GetDuration("handshake-timeout"),
		MaxRetries:       v.GetInt("retries"),
	}
	defer o.Close()

	err = o.Start(ctx, protocol.JoinRoom{
		RoomID:   roomID,
		UserID:   domain.UserID(v.GetString("user")),
		UserName: v.GetString("name"),
		Role:     role,
	})
	if errors.Is(err, peer.ErrMediaUnavailable) {
		return fmt.Errorf("%w; start the capture pipeline sending RTP to %s and %s", err, v.GetString("audio-addr"), v.GetString("video-addr"))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "* joining %s\n", o.RoomID())
	go readCommands(ctx, cancel, cmd.InOrStdin(), out, o)

	err = o.Run(ctx, client.Incoming())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// controls is the part of the orchestrator driven from stdin.
type controls interface {
	StartScreenShare(ctx context.Context) error
	StopScreenShare() error
	SetAudio(bool) error
	SetVideo(bool) error
	SendChat(string) error
	Leave() error
	EndConsultation() error
}

func readCommands(ctx context.Context, cancel context.CancelFunc, in io.Reader, out io.Writer, c controls) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		quit, err := handleLine(ctx, c, sc.Text())
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
		if quit {
			cancel()
			return
		}
	}
}

func handleLine(ctx context.Context, c controls, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false, nil
	case "/screen":
		return false, c.StartScreenShare(ctx)
	case "/stop":
		return false, c.StopScreenShare()
	case "/mute":
		return false, c.SetAudio(false)
	case "/unmute":
		return false, c.SetAudio(true)
	case "/video off":
		return false, c.SetVideo(false)
	case "/video on":
		return false, c.SetVideo(true)
	case "/end":
		return false, c.EndConsultation()
	case "/leave":
		return true, c.Leave()
	}
	if strings.HasPrefix(line, "/") {
		return false, fmt.Errorf("unknown command %q", line)
	}
	return false, c.SendChat(line)
}

func printHooks(out io.Writer) peer.Hooks {
	return peer.Hooks{
		PeerJoined: func(p peer.Peer) {
			fmt.Fprintf(out, "* %s (%s) is here\n", p.UserName, p.Role)
		},
		PeerLeft: func(sid domain.SessionID) {
			fmt.Fprintf(out, "* %s left\n", sid)
		},
		RemoteTrack: func(sid domain.SessionID, tr *webrtc.TrackRemote) {
			log.Info().Str("remote", string(sid)).Str("kind", tr.Kind().String()).Msg("receiving media")
		},
		MediaChanged: func(sid domain.SessionID, flag domain.MediaFlag, on bool) {
			fmt.Fprintf(out, "* %s %s=%t\n", sid, flag, on)
		},
		Chat: func(m domain.ChatMessage) {
			fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.SenderName, m.Text)
		},
		Ended: func(by string) {
			fmt.Fprintf(out, "* consultation ended by %s\n", by)
		},
		Error: func(e protocol.Error) {
			fmt.Fprintf(out, "! %s: %s\n", e.Code, e.Message)
		},
	}
}
