package signal

import (
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
)

// handlePing acknowledges a protocol-level liveness probe.
func (ctl *WSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *WSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type     string        `json:"type"`
		Username string        `json:"username,omitempty"`
		Room     domain.RoomID `json:"room,omitempty"`
	}{
		Type: "whoami",
	}
	if user, ok := ctl.Coord.UserOf(sid); ok {
		resp.Username = user.Username
		resp.Room = user.RoomID
	}
	ctl.sendJSON(conn, resp)
}
