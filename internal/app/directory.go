package app

import (
	"sort"

	"github.com/samber/lo"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
)

// memberRef pairs a session with its committed identity for fan-out.
type memberRef struct {
	SID  core.SessionID
	User *domain.User
}

// Directory maps a room id to its current member set. Rooms are created
// lazily on first insert and removed the moment the last member leaves.
// Like Registry it is not self-locking: the Coordinator's mutex guards
// both structures as one mutation domain.
type Directory struct {
	rooms map[domain.RoomID]map[core.SessionID]*domain.User
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[domain.RoomID]map[core.SessionID]*domain.User)}
}

func (d *Directory) Add(room domain.RoomID, sid core.SessionID, u *domain.User) {
	members, ok := d.rooms[room]
	if !ok {
		members = make(map[core.SessionID]*domain.User)
		d.rooms[room] = members
	}
	members[sid] = u
}

// Remove deletes the membership and the room record itself when the room
// becomes empty. It reports whether the session was a member.
func (d *Directory) Remove(room domain.RoomID, sid core.SessionID) bool {
	members, ok := d.rooms[room]
	if !ok {
		return false
	}
	if _, ok = members[sid]; !ok {
		return false
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(d.rooms, room)
	}
	return true
}

// HoldsUsername reports whether another session already holds the
// username inside the room.
func (d *Directory) HoldsUsername(room domain.RoomID, username string, except core.SessionID) bool {
	for sid, u := range d.rooms[room] {
		if sid != except && u.Username == username {
			return true
		}
	}
	return false
}

func (d *Directory) Members(room domain.RoomID) []memberRef {
	return lo.MapToSlice(d.rooms[room], func(sid core.SessionID, u *domain.User) memberRef {
		return memberRef{SID: sid, User: u}
	})
}

// Snapshot returns the room's users ordered by join time, ties broken by
// username so the listing is stable.
func (d *Directory) Snapshot(room domain.RoomID) []domain.User {
	users := lo.Map(lo.Values(d.rooms[room]), func(u *domain.User, _ int) domain.User {
		return *u
	})
	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users
}

func (d *Directory) MemberCount(room domain.RoomID) int {
	return len(d.rooms[room])
}

func (d *Directory) RoomCount() int {
	return len(d.rooms)
}

func (d *Directory) List() []core.RoomInfo {
	out := lo.MapToSlice(d.rooms, func(room domain.RoomID, members map[core.SessionID]*domain.User) core.RoomInfo {
		return core.RoomInfo{ID: string(room), MemberCount: len(members)}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
