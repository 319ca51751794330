package app

import (
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
)

type sessionEntry struct {
	Conn core.SignalConnection
	User *domain.User // nil until a join commits
}

// Registry maps an active transport session to its connection and, once a
// join commits, its identity. It carries no lock of its own: every access
// goes through the Coordinator's mutex so that registry and directory
// always change in the same critical section.
type Registry struct {
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection) {
	r.sessions[sid] = &sessionEntry{Conn: conn}
}

func (r *Registry) Unbind(sid core.SessionID) {
	delete(r.sessions, sid)
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

func (r *Registry) SetUser(sid core.SessionID, u *domain.User) bool {
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.User = u
	return true
}

func (r *Registry) ClearUser(sid core.SessionID) {
	if e, ok := r.sessions[sid]; ok {
		e.User = nil
	}
}

func (r *Registry) User(sid core.SessionID) (*domain.User, bool) {
	e, ok := r.sessions[sid]
	if !ok || e.User == nil {
		return nil, false
	}
	return e.User, true
}

// RoomOf reports the committed room of a session, if any.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	e, ok := r.sessions[sid]
	if !ok || e.User == nil {
		return "", false
	}
	return e.User.RoomID, true
}
