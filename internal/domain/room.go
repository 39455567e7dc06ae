package domain

// RoomID is stable for the lifetime of a consultation.
type RoomID string

const MaxRoomIDLen = 64

type Room struct {
	ID RoomID
}
