package domain

import "time"

type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     RoomID    `json:"roomId"`
	SenderID   SessionID `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
