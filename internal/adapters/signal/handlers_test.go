package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/config"
	"github.com/dkeye/CodeRoom/internal/core"
)

// The handlers never touch the raw websocket, only the send buffer, so a
// bare WsSignalConn is enough to drive the whole inbound path.

func newTestController() *WSController {
	cfg := &config.Config{
		SendBuffer:     16,
		JoinRate:       100,
		JoinRateWindow: time.Minute,
	}
	return NewWSController(app.NewCoordinator(app.DropPolicy{}), cfg)
}

func attach(ctl *WSController, sid core.SessionID) *WsSignalConn {
	conn := &WsSignalConn{send: make(chan core.Frame, 16)}
	ctl.Coord.Connect(sid, conn)
	return conn
}

func drain(t *testing.T, c *WsSignalConn) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case fr := <-c.send:
			var m map[string]any
			require.NoError(t, json.Unmarshal(fr, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func lastOfType(t *testing.T, c *WsSignalConn, typ string) map[string]any {
	t.Helper()
	var found map[string]any
	for _, e := range drain(t, c) {
		if e["type"] == typ {
			found = e
		}
	}
	require.NotNil(t, found, "expected a %q event", typ)
	return found
}

func TestHandleJoinAcknowledges(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")

	ctl.handleMessage("A", connA, []byte(`{"type":"join-request","roomId":"r1","username":"alice"}`))

	joined := lastOfType(t, connA, "joined")
	user := joined["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	users := joined["users"].([]any)
	assert.Len(t, users, 1)
}

func TestHandleJoinConflictAnswersUsernameExists(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")
	connB := attach(ctl, "B")

	ctl.handleMessage("B", connB, []byte(`{"type":"join-request","roomId":"r1","username":"bob"}`))
	ctl.handleMessage("A", connA, []byte(`{"type":"join-request","roomId":"r1","username":"bob"}`))

	lastOfType(t, connA, "username-exists")

	// B's membership is untouched.
	room, ok := ctl.Coord.RoomOf("B")
	require.True(t, ok)
	assert.Equal(t, "r1", string(room))
}

func TestHandleJoinRejectsBadPayload(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")

	ctl.handleMessage("A", connA, []byte(`{"type":"join-request","roomId":"r1"}`))

	errEvent := lastOfType(t, connA, "error")
	assert.Equal(t, "bad_payload", errEvent["error"])
	_, ok := ctl.Coord.RoomOf("A")
	assert.False(t, ok, "malformed join must not mutate state")
}

func TestCodeChangeRelaysToOthersOnly(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")
	connB := attach(ctl, "B")

	ctl.handleMessage("A", connA, []byte(`{"type":"join-request","roomId":"r1","username":"alice"}`))
	ctl.handleMessage("B", connB, []byte(`{"type":"join-request","roomId":"r1","username":"bob"}`))
	drain(t, connA)
	drain(t, connB)

	ctl.handleMessage("A", connA, []byte(`{"type":"code-change","roomId":"r1","code":"x = 1","filePath":"main.py"}`))

	update := lastOfType(t, connB, "code-update")
	assert.Equal(t, "x = 1", update["code"])
	assert.Equal(t, "main.py", update["filePath"])
	assert.Equal(t, "A", update["sender"])
	assert.NotZero(t, update["timestamp"])

	for _, e := range drain(t, connA) {
		assert.NotEqual(t, "code-update", e["type"], "sender must not receive its own update")
	}
}

func TestCodeChangeOutsideRoomRejected(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")

	ctl.handleMessage("A", connA, []byte(`{"type":"code-change","roomId":"r1","code":"x"}`))
	errEvent := lastOfType(t, connA, "error")
	assert.Equal(t, "not in a room", errEvent["error"])
}

func TestChatEchoesToSender(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")
	connB := attach(ctl, "B")

	ctl.handleMessage("A", connA, []byte(`{"type":"join-request","roomId":"r1","username":"alice"}`))
	ctl.handleMessage("B", connB, []byte(`{"type":"join-request","roomId":"r1","username":"bob"}`))
	drain(t, connA)
	drain(t, connB)

	ctl.handleMessage("A", connA, []byte(`{"type":"chat-message","roomId":"r1","text":"hello"}`))

	gotA := lastOfType(t, connA, "chat-update")
	gotB := lastOfType(t, connB, "chat-update")
	assert.Equal(t, "hello", gotA["text"])
	assert.Equal(t, "hello", gotB["text"])
	assert.Equal(t, "alice", gotB["username"])
}

func TestLeaveRoomNotifiesRemaining(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")
	connB := attach(ctl, "B")

	ctl.handleMessage("A", connA, []byte(`{"type":"join-request","roomId":"r1","username":"alice"}`))
	ctl.handleMessage("B", connB, []byte(`{"type":"join-request","roomId":"r1","username":"bob"}`))
	drain(t, connA)

	ctl.handleMessage("A", connA, []byte(`{"type":"leave-room","roomId":"r1"}`))

	lastOfType(t, connA, "left")
	removed := lastOfType(t, connB, "member-removed")
	assert.Equal(t, "A", removed["connectionId"])
	assert.Equal(t, "alice", removed["username"])
}

func TestPingAnswersPong(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")

	ctl.handleMessage("A", connA, []byte(`{"type":"ping"}`))
	lastOfType(t, connA, "pong")
}

func TestWhoAmI(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")

	ctl.handleMessage("A", connA, []byte(`{"type":"whoami"}`))
	resp := lastOfType(t, connA, "whoami")
	assert.Nil(t, resp["username"])

	ctl.handleMessage("A", connA, []byte(`{"type":"join-request","roomId":"r1","username":"alice"}`))
	drain(t, connA)
	ctl.handleMessage("A", connA, []byte(`{"type":"whoami"}`))
	resp = lastOfType(t, connA, "whoami")
	assert.Equal(t, "alice", resp["username"])
	assert.Equal(t, "r1", resp["room"])
}

func TestUnknownEventIgnored(t *testing.T) {
	ctl := newTestController()
	connA := attach(ctl, "A")

	ctl.handleMessage("A", connA, []byte(`{"type":"teleport"}`))
	assert.Empty(t, drain(t, connA))
}
