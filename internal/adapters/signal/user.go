package signal

import (
	"errors"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

var errUnauthenticated = errors.New("no verified identity for this connection")

// resolveUser picks the identity a join is admitted under. The HTTP session
// identity always wins over whatever the client claims.
func (ctl *SignalWSController) resolveUser(c *wsClient, p protocol.JoinRoom) (*domain.User, error) {
	if c.identity != nil {
		if p.UserID != "" && p.UserID != c.identity.ID {
			log.Warn().Str("module", "signal").Str("sid", string(c.sid)).Str("claimed", string(p.UserID)).Str("verified", string(c.identity.ID)).Msg("claimed identity ignored")
		}
		u := *c.identity
		if p.UserName != "" {
			if err := u.SetUsername(p.UserName); err != nil {
				return nil, err
			}
		}
		return &u, nil
	}
	if !ctl.opts.TrustClaimedIdentity {
		return nil, errUnauthenticated
	}
	role, err := domain.ParseRole(string(p.Role))
	if err != nil {
		return nil, err
	}
	return domain.NewUser(p.UserID, p.UserName, role)
}
