package signal

import (
	"errors"

	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
)

const (
	codeBadPayload      = "bad_payload"
	codeUnknownType     = "unknown_type"
	codeUnauthenticated = "unauthenticated"
	codeInvalidUser     = "invalid_user"
	codeRateLimited     = "rate_limited"
	codeInternal        = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{orch.ErrNotConnected, "not_connected"},
	{orch.ErrAlreadyJoined, "already_joined"},
	{orch.ErrSessionLeft, "session_left"},
	{orch.ErrNotInRoom, "not_in_room"},
	{orch.ErrNotAuthorized, "not_authorized"},
	{orch.ErrInvalidRoom, "invalid_room"},
	{orch.ErrEmptyMessage, "empty_message"},
	{orch.ErrMessageTooLong, "message_too_long"},
	{domain.ErrUserIDEmpty, codeInvalidUser},
	{domain.ErrUserIDTooLong, codeInvalidUser},
	{domain.ErrUsernameEmpty, codeInvalidUser},
	{domain.ErrUsernameTooLong, codeInvalidUser},
	{domain.ErrInvalidRole, codeInvalidUser},
}

func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return codeInternal
}

func (ctl *SignalWSController) sendError(c *wsClient, code, message string) {
	ctl.send(c, protocol.TypeError, protocol.Error{Code: code, Message: message})
}

func (ctl *SignalWSController) replyErr(c *wsClient, err error) {
	ctl.sendError(c, errorCode(err), err.Error())
}
