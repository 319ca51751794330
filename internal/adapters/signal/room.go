package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
)

func (ctl *WSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	p, err := decode[joinRequest](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, "too_many_join_attempts")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Str("username", p.Username).Msg("join-request")
	res, err := ctl.Coord.Join(sid, domain.RoomID(p.RoomID), p.Username)
	if err != nil {
		switch app.KindOf(err) {
		case app.FailConflict:
			ctl.sendJSON(conn, map[string]any{
				"type":  "username-exists",
				"error": "username already taken in this room",
			})
		case app.FailValidation:
			ctl.sendError(conn, err.Error())
		default:
			log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
			ctl.sendError(conn, "internal error")
		}
		return
	}

	ctl.sendJSON(conn, struct {
		Type  string        `json:"type"`
		User  domain.User   `json:"user"`
		Users []domain.User `json:"users"`
	}{
		Type:  "joined",
		User:  res.User,
		Users: res.Users,
	})
}

// handleLeave drops the membership only; the connection stays up.
func (ctl *WSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave-room")
	ctl.Coord.Leave(sid)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}
