package orch

import "errors"

var (
	ErrNotConnected   = errors.New("session is not connected")
	ErrAlreadyJoined  = errors.New("session already joined a room")
	ErrSessionLeft    = errors.New("session has left")
	ErrNotInRoom      = errors.New("session is not a member of the room")
	ErrNotAuthorized  = errors.New("not authorized for this room")
	ErrInvalidRoom    = errors.New("invalid room id")
	ErrEmptyMessage   = errors.New("empty chat message")
	ErrMessageTooLong = errors.New("chat message too long")
)
