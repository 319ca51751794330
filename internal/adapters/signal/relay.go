package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
)

// The relay handlers are thin instances of the same broadcast operation:
// decode the tagged payload, stamp sender and time, fan out. Payload
// content stays opaque.

func (ctl *WSController) handleCodeChange(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	p, err := decode[codeChange](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad code-change payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	room, ok := ctl.memberRoom(sid, p.RoomID, conn)
	if !ok {
		return
	}

	ctl.Coord.Broadcast(room, sid, core.ExcludeSender, struct {
		Type      string          `json:"type"`
		Code      string          `json:"code"`
		CursorPos json.RawMessage `json:"cursorPos,omitempty"`
		FilePath  string          `json:"filePath,omitempty"`
		Sender    string          `json:"sender"`
		Timestamp int64           `json:"timestamp"`
	}{
		Type:      "code-update",
		Code:      p.Code,
		CursorPos: p.CursorPos,
		FilePath:  p.FilePath,
		Sender:    string(sid),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (ctl *WSController) handleChatMessage(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	p, err := decode[chatMessage](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat-message payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	room, ok := ctl.memberRoom(sid, p.RoomID, conn)
	if !ok {
		return
	}
	user, _ := ctl.Coord.UserOf(sid)

	// Chat echoes back to the sender so its own line renders in order.
	ctl.Coord.Broadcast(room, sid, core.IncludeSender, struct {
		Type      string `json:"type"`
		Text      string `json:"text"`
		Sender    string `json:"sender"`
		Username  string `json:"username"`
		Timestamp int64  `json:"timestamp"`
	}{
		Type:      "chat-update",
		Text:      p.Text,
		Sender:    string(sid),
		Username:  user.Username,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (ctl *WSController) handleDrawEvent(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	p, err := decode[drawEvent](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad draw-event payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	room, ok := ctl.memberRoom(sid, p.RoomID, conn)
	if !ok {
		return
	}

	ctl.Coord.Broadcast(room, sid, core.ExcludeSender, struct {
		Type      string          `json:"type"`
		Stroke    json.RawMessage `json:"stroke"`
		Sender    string          `json:"sender"`
		Timestamp int64           `json:"timestamp"`
	}{
		Type:      "draw-update",
		Stroke:    p.Stroke,
		Sender:    string(sid),
		Timestamp: time.Now().UnixMilli(),
	})
}

// memberRoom checks the sender is a committed member of the room the
// payload names. The registry's view is authoritative.
func (ctl *WSController) memberRoom(sid core.SessionID, claimed string, conn *WsSignalConn) (domain.RoomID, bool) {
	room, ok := ctl.Coord.RoomOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a room")
		return "", false
	}
	if string(room) != claimed {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("claimed", claimed).Str("actual", string(room)).Msg("room mismatch")
		ctl.sendError(conn, "not a member of that room")
		return "", false
	}
	return room, true
}
