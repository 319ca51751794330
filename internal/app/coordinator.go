package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
)

// JoinResult is the committed profile plus the room snapshot returned to
// the requester.
type JoinResult struct {
	User  domain.User   `json:"user"`
	Users []domain.User `json:"users"`
}

type memberAddedEvent struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}

type memberRemovedEvent struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
}

// target is a resolved fan-out destination, captured while the lock is
// held so sends can happen after it is released.
type target struct {
	sid  core.SessionID
	conn core.SignalConnection
}

// departure summarizes a removed membership and who is left to notify.
type departure struct {
	Room      domain.RoomID
	SID       core.SessionID
	Username  string
	Remaining []target
}

// Coordinator owns the (Registry, Directory) pair and is the only writer
// of either. All mutations run under one mutex so both structures change
// in the same step; fan-out never happens while it is held.
type Coordinator struct {
	mu        sync.RWMutex
	registry  *Registry
	directory *Directory
	policy    Policy
}

func NewCoordinator(policy Policy) *Coordinator {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Coordinator{
		registry:  NewRegistry(),
		directory: NewDirectory(),
		policy:    policy,
	}
}

// Connect binds a fresh transport session. Each websocket gets its own
// session id, so a stale socket's teardown can never clobber a newer one.
func (c *Coordinator) Connect(sid core.SessionID, conn core.SignalConnection) {
	c.mu.Lock()
	c.registry.Bind(sid, conn)
	c.mu.Unlock()
	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).Msg("session connected")
}

// Join validates and commits a membership. A connection already in a room
// is implicitly removed from it first, which makes Join safe to call again
// after a reconnect. The commit is all-or-nothing: on any failure the
// registries are exactly as they were.
func (c *Coordinator) Join(sid core.SessionID, room domain.RoomID, username string) (*JoinResult, error) {
	if err := domain.ValidateRoomID(room); err != nil {
		return nil, validationErr(err)
	}
	if err := domain.ValidateUsername(username); err != nil {
		return nil, validationErr(err)
	}

	c.mu.Lock()
	if _, ok := c.registry.Conn(sid); !ok {
		c.mu.Unlock()
		return nil, internalErr(ErrUnknownConnection)
	}
	// Conflict scan runs before the implicit leave so a rejected join
	// leaves the old membership untouched. Excluding sid keeps a
	// same-room re-join with the same name from colliding with itself.
	if c.directory.HoldsUsername(room, username, sid) {
		c.mu.Unlock()
		return nil, conflictErr(ErrUsernameTaken)
	}
	user, err := domain.NewUser(username, room)
	if err != nil {
		c.mu.Unlock()
		return nil, validationErr(err)
	}

	dep := c.removeMembershipLocked(sid)
	c.directory.Add(room, sid, user)
	c.registry.SetUser(sid, user)
	snapshot := c.directory.Snapshot(room)
	others := c.targetsLocked(room, sid)
	c.mu.Unlock()

	if dep != nil {
		log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).Str("from_room", string(dep.Room)).Msg("implicit leave before join")
		c.notifyRemoved(dep)
	}
	c.notify(others, memberAddedEvent{Type: "member-added", User: *user})
	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).Str("room", string(room)).Str("username", username).Msg("join committed")

	return &JoinResult{User: *user, Users: snapshot}, nil
}

// Leave removes the session's membership, if any. Safe to call twice; the
// second call is a no-op.
func (c *Coordinator) Leave(sid core.SessionID) bool {
	c.mu.Lock()
	dep := c.removeMembershipLocked(sid)
	c.mu.Unlock()
	if dep == nil {
		return false
	}
	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).Str("room", string(dep.Room)).Msg("left room")
	c.notifyRemoved(dep)
	return true
}

// Disconnect tears the session down entirely: membership first, then the
// registry binding. The reason is informational only.
func (c *Coordinator) Disconnect(sid core.SessionID, reason string) {
	c.mu.Lock()
	dep := c.removeMembershipLocked(sid)
	c.registry.Unbind(sid)
	c.mu.Unlock()
	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).Str("reason", reason).Msg("session disconnected")
	if dep != nil {
		c.notifyRemoved(dep)
	}
}

// Broadcast fans an encoded event out to the room's members as recorded
// at call time. Delivery is at-most-once per member: a full send buffer
// drops the frame for that member and the backpressure policy decides
// what happens to it.
func (c *Coordinator) Broadcast(room domain.RoomID, from core.SessionID, mode core.BroadcastMode, v any) core.PublishResult {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("broadcast encode")
		return core.PublishResult{}
	}

	c.mu.RLock()
	var targets []target
	if mode == core.ExcludeSender {
		targets = c.targetsLocked(room, from)
	} else {
		targets = c.targetsLocked(room, "")
	}
	c.mu.RUnlock()

	res := core.PublishResult{}
	for _, t := range targets {
		if err := t.conn.TrySend(core.Frame(frame)); err != nil {
			res.Dropped = append(res.Dropped, t.sid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.coordinator").Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")

	for _, slow := range res.Dropped {
		if c.policy.OnBackPressure(string(room), slow) == KickMember {
			log.Warn().Str("module", "app.coordinator").Str("sid", string(slow)).Msg("kicking slow member")
			c.Leave(slow)
		}
	}
	return res
}

// UserOf returns a copy of the session's committed identity.
func (c *Coordinator) UserOf(sid core.SessionID) (domain.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.registry.User(sid)
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// RoomOf reports the committed room of a session, if any.
func (c *Coordinator) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.RoomOf(sid)
}

// Rooms lists active rooms and their member counts for the status surface.
func (c *Coordinator) Rooms() []core.RoomInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.directory.List()
}

// removeMembershipLocked deletes the membership from both structures in
// one step. Caller holds the write lock. Returns nil when the session had
// no committed room.
func (c *Coordinator) removeMembershipLocked(sid core.SessionID) *departure {
	user, ok := c.registry.User(sid)
	if !ok {
		return nil
	}
	room := user.RoomID
	c.directory.Remove(room, sid)
	c.registry.ClearUser(sid)
	return &departure{
		Room:      room,
		SID:       sid,
		Username:  user.Username,
		Remaining: c.targetsLocked(room, ""),
	}
}

// targetsLocked resolves the room's members to sendable connections,
// skipping except. Caller holds the lock.
func (c *Coordinator) targetsLocked(room domain.RoomID, except core.SessionID) []target {
	members := c.directory.Members(room)
	out := make([]target, 0, len(members))
	for _, m := range members {
		if m.SID == except {
			continue
		}
		conn, ok := c.registry.Conn(m.SID)
		if !ok {
			continue
		}
		out = append(out, target{sid: m.SID, conn: conn})
	}
	return out
}

func (c *Coordinator) notifyRemoved(dep *departure) {
	c.notify(dep.Remaining, memberRemovedEvent{
		Type:         "member-removed",
		ConnectionID: string(dep.SID),
		Username:     dep.Username,
	})
}

// notify delivers a coordinator-originated event best-effort. A failed
// send is a transport problem for that one member; it never aborts
// delivery to the rest.
func (c *Coordinator) notify(targets []target, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("notify encode")
		return
	}
	for _, t := range targets {
		if err := t.conn.TrySend(core.Frame(frame)); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("sid", string(t.sid)).Msg("notify dropped")
		}
	}
}
