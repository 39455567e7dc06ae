package peer

import (
	"errors"
	"fmt"

	"github.com/dkeye/Consult/internal/domain"
)

var (
	ErrMediaUnavailable  = errors.New("camera or microphone unavailable")
	ErrScreenUnavailable = errors.New("screen capture unavailable")
	ErrNotJoined         = errors.New("not joined to a room")
	ErrSignalingClosed   = errors.New("signaling connection closed")
)

// LinkError describes a failed step on one peer link.
type LinkError struct {
	Op     string
	Remote domain.SessionID
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s (peer %s): %v", e.Op, e.Remote, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func linkErr(op string, remote domain.SessionID, err error) *LinkError {
	return &LinkError{Op: op, Remote: remote, Err: err}
}
