// Package protocol defines the JSON frames exchanged over the signaling websocket.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// Client -> server.
const (
	TypeJoinRoom         = "join-room"
	TypeLeaveRoom        = "leave-room"
	TypeSendSignal       = "send-signal"
	TypeReturnSignal     = "return-signal"
	TypeToggleAudio      = "toggle-audio"
	TypeToggleVideo      = "toggle-video"
	TypeStartScreenShare = "start-screen-share"
	TypeStopScreenShare  = "stop-screen-share"
	TypeChatMessage      = "chat-message"
	TypeEndConsultation  = "end-consultation"
	TypePing             = "ping"
)

// Server -> client.
const (
	TypeRoomJoined              = "room-joined"
	TypeParticipantJoined       = "participant-joined"
	TypeParticipantLeft         = "participant-left"
	TypeReceivingSignal         = "receiving-signal"
	TypeReceivingReturnedSignal = "receiving-returned-signal"
	TypeAudioToggled            = "audio-toggled"
	TypeVideoToggled            = "video-toggled"
	TypeScreenShareStarted      = "screen-share-started"
	TypeScreenShareStopped      = "screen-share-stopped"
	TypeConsultationEnded       = "consultation-ended"
	TypeLeft                    = "left"
	TypeError                   = "error"
	TypePong                    = "pong"
)

// Envelope wraps every frame. Seq is set on room-scoped events only.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Encode(typ string, seq uint64, payload any) ([]byte, error) {
	env := Envelope{Type: typ, Seq: seq}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

type JoinRoom struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
	Role     domain.Role   `json:"role"`
}

// Signal carries an opaque handshake payload toward one session.
type Signal struct {
	TargetSessionID domain.SessionID `json:"targetSessionId"`
	Payload         json.RawMessage  `json:"payload"`
}

type Toggle struct {
	RoomID  domain.RoomID `json:"roomId"`
	Enabled bool          `json:"enabled"`
}

type RoomRef struct {
	RoomID domain.RoomID `json:"roomId"`
}

type ChatSend struct {
	RoomID  domain.RoomID `json:"roomId"`
	Message string        `json:"message"`
}

// RoomJoined lists the members present before the joiner arrived.
type RoomJoined struct {
	RoomID       domain.RoomID    `json:"roomId"`
	SessionID    domain.SessionID `json:"sessionId"`
	Participants []core.MemberDTO `json:"participants"`
}

type Participant struct {
	RoomID    domain.RoomID    `json:"roomId"`
	SessionID domain.SessionID `json:"sessionId"`
	UserID    domain.UserID    `json:"userId"`
	UserName  string           `json:"userName"`
	Role      domain.Role      `json:"role"`
}

type RelayedSignal struct {
	Signal   json.RawMessage  `json:"signal"`
	SenderID domain.SessionID `json:"senderId"`
}

type MediaToggled struct {
	SessionID domain.SessionID `json:"sessionId"`
	UserID    domain.UserID    `json:"userId"`
	Enabled   bool             `json:"enabled"`
}

type ScreenShare struct {
	SessionID domain.SessionID `json:"sessionId"`
	UserID    domain.UserID    `json:"userId"`
}

type ConsultationEnded struct {
	RoomID  domain.RoomID `json:"roomId"`
	EndedBy string        `json:"endedBy"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
