package orch

import (
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const MaxChatRunes = 4000

// SendChat stamps a message with a server id and UTC receipt time and
// delivers it to every member of the room, the sender included.
func (o *Orchestrator) SendChat(sid domain.SessionID, roomID domain.RoomID, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxChatRunes {
		return domain.ChatMessage{}, ErrMessageTooLong
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	room, ms, err := o.memberLocked(sid, roomID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   sid,
		SenderName: ms.Meta().User.Username,
		Text:       text,
		Timestamp:  o.now().UTC(),
	}
	seq := room.NextSeq()
	log.Debug().Str("module", "orch.chat").Str("sid", string(sid)).Str("room", string(roomID)).Str("id", msg.ID).Msg("chat")
	o.broadcastLocked(room, "", protocol.TypeChatMessage, seq, msg)
	return msg, nil
}
