package peer

import (
	"context"
	"fmt"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// StartScreenShare swaps the outgoing video on every link to a screen
// track. If capture is refused the camera keeps flowing and nothing is sent.
func (o *Orchestrator) StartScreenShare(ctx context.Context) error {
	o.mu.Lock()
	if !o.joined {
		o.mu.Unlock()
		return ErrNotJoined
	}
	if o.sharing {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	// capture may wait on the user, so it runs unlocked
	track, err := o.Media.OpenScreen(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScreenUnavailable, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sharing {
		return nil
	}
	if !o.joined {
		o.Media.CloseScreen()
		return ErrNotJoined
	}
	o.replaceVideoLocked(track)
	o.screen = track
	o.sharing = true
	return o.Signal.Send(protocol.TypeStartScreenShare, protocol.RoomRef{RoomID: o.roomID})
}

// StopScreenShare restores the camera track on every link.
func (o *Orchestrator) StopScreenShare() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.sharing {
		return nil
	}
	o.replaceVideoLocked(o.local.Video)
	o.sharing = false
	o.screen = nil
	o.Media.CloseScreen()
	if !o.joined {
		return nil
	}
	return o.Signal.Send(protocol.TypeStopScreenShare, protocol.RoomRef{RoomID: o.roomID})
}

func (o *Orchestrator) replaceVideoLocked(track webrtc.TrackLocal) {
	for remote, l := range o.links {
		if err := l.peer.ReplaceVideo(track); err != nil {
			log.Warn().Err(linkErr("replace video", remote, err)).Str("module", "client.peer").Msg("track replacement")
		}
	}
}

func (o *Orchestrator) IsSharing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sharing
}

func (o *Orchestrator) SetAudio(enabled bool) error {
	return o.setMedia(webrtc.RTPCodecTypeAudio, protocol.TypeToggleAudio, enabled)
}

func (o *Orchestrator) SetVideo(enabled bool) error {
	return o.setMedia(webrtc.RTPCodecTypeVideo, protocol.TypeToggleVideo, enabled)
}

func (o *Orchestrator) setMedia(kind webrtc.RTPCodecType, typ string, enabled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.joined {
		return ErrNotJoined
	}
	o.Media.SetEnabled(kind, enabled)
	return o.Signal.Send(typ, protocol.Toggle{RoomID: o.roomID, Enabled: enabled})
}

func (o *Orchestrator) SendChat(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.joined {
		return ErrNotJoined
	}
	return o.Signal.Send(protocol.TypeChatMessage, protocol.ChatSend{RoomID: o.roomID, Message: text})
}

// Leave exits the room and releases local media.
func (o *Orchestrator) Leave() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.joined {
		return ErrNotJoined
	}
	err := o.Signal.Send(protocol.TypeLeaveRoom, nil)
	o.leaveLocked()
	o.releaseMediaLocked()
	return err
}

// EndConsultation asks the server to end the room for everyone; links are
// torn down when consultation-ended comes back.
func (o *Orchestrator) EndConsultation() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.joined {
		return ErrNotJoined
	}
	return o.Signal.Send(protocol.TypeEndConsultation, protocol.RoomRef{RoomID: o.roomID})
}

func (o *Orchestrator) RoomID() domain.RoomID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.roomID
}
